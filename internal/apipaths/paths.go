package apipaths

// Single API surface paths. Used by routes and by the API client.

const (
	Health  = "/api/health"
	Session = "/api/session"
	Scripts = "/api/scripts"
	Metrics = "/metrics"

	SignUp  = "/auth/signup"
	SignIn  = "/auth/signin"
	SignOut = "/auth/signout"

	Home       = "/"
	SignInPage = "/signin"
	SignUpPage = "/signup"
	Studio     = "/studio"
)
