package constants

// Session event kinds, mirroring the provider's auth-state notifications
const (
	EventSignedIn       = "SIGNED_IN"
	EventSignedOut      = "SIGNED_OUT"
	EventTokenRefreshed = "TOKEN_REFRESHED"
)

// Session cookie claim attributes
const (
	AttrAccessToken  = "access_token"
	AttrRefreshToken = "refresh_token"
	AttrExpiresAt    = "expires_at"
)

// Redirect query parameters and values used by the access middleware
const (
	QueryError        = "error"
	QueryMessage      = "message"
	ErrorUnauthorized = "unauthorized"
)

// Metric outcome labels
const (
	OutcomeSuccess           = "success"
	OutcomeValidationFailed  = "validation_failed"
	OutcomeUnauthorized      = "unauthorized"
	OutcomePersistenceFailed = "persistence_failed"
	OutcomeTransportFailed   = "transport_failed"
	OutcomeRejected          = "rejected"
	OutcomeEmailNotConfirmed = "email_not_confirmed"
)

// Access decisions
const (
	DecisionAllow    = "allow"
	DecisionRedirect = "redirect"
	DecisionSkipped  = "skipped"
)

// Auth operation names, used in logs, metrics and user-facing errors
const (
	OperationSignUp  = "Sign up"
	OperationSignIn  = "Sign in"
	OperationSignOut = "Sign out"
)

// ContextKeySession is the gin context key holding the resolved *domain.Session
const ContextKeySession = "session"
