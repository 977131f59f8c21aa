package access

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/cookies"
	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/metrics"
)

// Refresher exchanges a refresh token for a new provider session
type Refresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error)
}

// Resolver resolves the session of one request. It reads the request cookie
// and writes a replacement or a reset to the response when the session had
// to be refreshed or dropped.
type Resolver struct {
	codec     *cookies.Codec
	refresher Refresher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	r *http.Request
	w http.ResponseWriter

	resolved bool
	session  *domain.Session
}

// Resolve returns the request's valid session, or nil. The result is computed
// once per Resolver.
func (rv *Resolver) Resolve(ctx context.Context) *domain.Session {
	if rv.resolved {
		return rv.session
	}
	rv.resolved = true
	rv.session = rv.resolve(ctx)
	return rv.session
}

func (rv *Resolver) resolve(ctx context.Context) *domain.Session {
	session, err := rv.codec.Read(rv.r)
	if err != nil {
		rv.logger.WarnContext(ctx, "dropping unreadable session cookie", "error", err)
		rv.codec.Clear(rv.w)
		return nil
	}
	if session == nil {
		return nil
	}

	now := rv.now()
	if session.Valid(now) {
		return session
	}

	if session.RefreshToken == "" || rv.refresher == nil {
		rv.logger.DebugContext(ctx, "session expired without refresh token", "user_id", session.UserID)
		rv.codec.Clear(rv.w)
		return nil
	}

	refreshed, err := rv.refresher.RefreshSession(ctx, session.RefreshToken)
	if err != nil || !refreshed.Valid(now) {
		rv.logger.WarnContext(ctx, "session refresh failed", "user_id", session.UserID, "error", err)
		rv.metrics.SessionRefresh(constants.OutcomeRejected)
		rv.codec.Clear(rv.w)
		return nil
	}

	if refreshed.UserID == "" {
		refreshed.UserID = session.UserID
	}
	if refreshed.Email == "" {
		refreshed.Email = session.Email
	}
	if err := rv.codec.Write(rv.w, refreshed); err != nil {
		rv.logger.WarnContext(ctx, "failed to rewrite refreshed session cookie", "error", err)
	}

	rv.logger.DebugContext(ctx, "session refreshed", "user_id", refreshed.UserID)
	rv.metrics.SessionRefresh(constants.OutcomeSuccess)
	return refreshed
}
