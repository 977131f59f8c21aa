// Package auth wraps the identity provider's sign-up, sign-in and sign-out
// into uniform results and hands the resulting session to a sink.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/metrics"
	"github.com/autoscripty/internal/validation"
)

// Result is the outcome of an auth operation. Err keeps the underlying error
// for callers that map outcomes to status codes; it is never serialized.
type Result struct {
	Success           bool            `json:"success"`
	Session           *domain.Session `json:"session,omitempty"`
	Error             string          `json:"error,omitempty"`
	EmailNotConfirmed bool            `json:"email_not_confirmed,omitempty"`
	Err               error           `json:"-"`
}

// Gateway performs auth operations against the identity provider
type Gateway struct {
	provider domain.IdentityProvider
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewGateway creates a new auth gateway
func NewGateway(provider domain.IdentityProvider, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: provider, metrics: m, logger: logger}
}

// Register creates a new identity. When the provider holds the identity until
// its email is confirmed the result succeeds without a session.
func (g *Gateway) Register(ctx context.Context, sink domain.SessionSink, email, password string) Result {
	op := constants.OperationSignUp
	g.logger.InfoContext(ctx, "signing up", "email", email)

	if err := validation.ValidateCredentials(email, password); err != nil {
		return g.fail(ctx, op, err)
	}

	resp, err := g.provider.SignUp(ctx, email, password)
	if err != nil {
		return g.fail(ctx, op, err)
	}

	if resp.Session != nil {
		if err := sink.SetSession(resp.Session); err != nil {
			return g.fail(ctx, op, domain.WrapTransport("store session", err))
		}
	} else {
		g.logger.InfoContext(ctx, "sign up pending email confirmation", "email", email)
	}

	g.metrics.AuthOperation(op, constants.OutcomeSuccess)
	return Result{Success: true, Session: resp.Session}
}

// Authenticate exchanges credentials for a session
func (g *Gateway) Authenticate(ctx context.Context, sink domain.SessionSink, email, password string) Result {
	op := constants.OperationSignIn
	g.logger.InfoContext(ctx, "signing in", "email", email)

	if err := validation.ValidateCredentials(email, password); err != nil {
		return g.fail(ctx, op, err)
	}

	resp, err := g.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return g.fail(ctx, op, err)
	}

	if err := sink.SetSession(resp.Session); err != nil {
		return g.fail(ctx, op, domain.WrapTransport("store session", err))
	}

	g.metrics.AuthOperation(op, constants.OutcomeSuccess)
	return Result{Success: true, Session: resp.Session}
}

// Deauthenticate revokes session at the provider and clears the sink. A
// provider that no longer knows the session counts as signed out.
func (g *Gateway) Deauthenticate(ctx context.Context, sink domain.SessionSink, session *domain.Session) Result {
	op := constants.OperationSignOut

	if session != nil && session.AccessToken != "" {
		if err := g.provider.SignOut(ctx, session.AccessToken); err != nil && !sessionGone(err) {
			return g.fail(ctx, op, err)
		}
	}

	if err := sink.SetSession(nil); err != nil {
		return g.fail(ctx, op, domain.WrapTransport("clear session", err))
	}

	g.logger.InfoContext(ctx, "signed out")
	g.metrics.AuthOperation(op, constants.OutcomeSuccess)
	return Result{Success: true}
}

func (g *Gateway) fail(ctx context.Context, operation string, err error) Result {
	var (
		wrapped error
		message string
		outcome string
	)
	switch {
	case domain.IsValidationError(err):
		wrapped, outcome = err, constants.OutcomeValidationFailed
		message = operation + " failed: " + domain.PublicMessage(err)
	case domain.IsTransportError(err):
		wrapped, outcome = err, constants.OutcomeTransportFailed
		message = operation + " failed: " + domain.PublicMessage(err)
	default:
		wrapped, outcome = domain.WrapAuthFailed(operation, err), constants.OutcomeRejected
		if domain.IsEmailNotConfirmed(err) {
			outcome = constants.OutcomeEmailNotConfirmed
		}
		message = domain.PublicMessage(wrapped)
	}

	g.logger.WarnContext(ctx, "auth operation failed", "operation", operation, "outcome", outcome, "error", err)
	g.metrics.AuthOperation(operation, outcome)

	return Result{
		Success:           false,
		Error:             message,
		EmailNotConfirmed: outcome == constants.OutcomeEmailNotConfirmed,
		Err:               wrapped,
	}
}

// sessionGone reports provider answers meaning the session is already invalid
func sessionGone(err error) bool {
	var providerErr *domain.ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}
	switch providerErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
