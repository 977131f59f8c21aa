package access

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autoscripty/internal/config"
	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/cookies"
	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/metrics"
)

// Middleware redirects unauthenticated requests away from protected paths and
// puts the resolved session on the gin context of every inspected request.
type Middleware struct {
	matcher     *Matcher
	codec       *cookies.Codec
	refresher   Refresher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	redirectURL string
	now         func() time.Time
}

// NewMiddleware creates the access middleware for policy
func NewMiddleware(policy config.Policy, codec *cookies.Codec, refresher Refresher, m *metrics.Metrics, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		matcher:     NewMatcher(policy),
		codec:       codec,
		refresher:   refresher,
		metrics:     m,
		logger:      logger,
		redirectURL: redirectURL(policy),
		now:         time.Now,
	}
}

func redirectURL(policy config.Policy) string {
	target := policy.RedirectPath
	if target == "" {
		target = "/"
	}
	query := url.Values{}
	query.Set(constants.QueryError, constants.ErrorUnauthorized)
	query.Set(constants.QueryMessage, policy.RedirectMessage)
	return target + "?" + query.Encode()
}

// NewResolver binds a resolver to one request and its response
func (m *Middleware) NewResolver(w http.ResponseWriter, r *http.Request) *Resolver {
	return &Resolver{
		codec:     m.codec,
		refresher: m.refresher,
		metrics:   m.metrics,
		logger:    m.logger,
		now:       m.now,
		r:         r,
		w:         w,
	}
}

// Matcher returns the path matcher in use
func (m *Middleware) Matcher() *Matcher {
	return m.matcher
}

// Handler returns the gin handler
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if m.matcher.Skip(path) {
			m.metrics.AccessDecision(constants.DecisionSkipped)
			c.Next()
			return
		}

		session := m.NewResolver(c.Writer, c.Request).Resolve(c.Request.Context())
		decision := Decide(session != nil, m.matcher.IsProtected(path))
		m.metrics.AccessDecision(decision.String())

		if decision == Redirect {
			m.logger.InfoContext(c.Request.Context(), "redirecting unauthenticated request", "path", path)
			c.Redirect(http.StatusFound, m.redirectURL)
			c.Abort()
			return
		}

		if session != nil {
			c.Set(constants.ContextKeySession, session)
		}
		c.Next()
	}
}

// SessionFromContext returns the session resolved by the middleware, or nil
func SessionFromContext(c *gin.Context) *domain.Session {
	value, ok := c.Get(constants.ContextKeySession)
	if !ok {
		return nil
	}
	session, _ := value.(*domain.Session)
	return session
}
