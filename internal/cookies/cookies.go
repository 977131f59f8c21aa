// Package cookies stores the provider session in a signed JWT cookie. The
// access middleware, the HTTP handlers and the API client all share the one
// cookie name configured here.
package cookies

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-pkgz/auth/token"

	"github.com/autoscripty/internal/config"
	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
)

const issuer = "autoscripty"

// ErrInvalidCookie is returned by Read when a session cookie is present but
// cannot be trusted.
var ErrInvalidCookie = errors.New("invalid session cookie")

// Codec reads and writes the session cookie
type Codec struct {
	name   string
	tokens *token.Service
}

// NewCodec creates a codec signing cookies with the configured secret
func NewCodec(cfg config.SessionConfig) *Codec {
	name := cfg.CookieName
	if name == "" {
		name = "scripty-session"
	}
	duration := cfg.CookieDuration
	if duration <= 0 {
		duration = 7 * 24 * time.Hour
	}

	tokens := token.NewService(token.Opts{
		SecretReader: token.SecretFunc(func(string) (string, error) {
			return cfg.Secret, nil
		}),
		TokenDuration:   duration,
		CookieDuration:  duration,
		Issuer:          issuer,
		JWTCookieName:   name,
		JWTCookieDomain: cfg.CookieDomain,
		SecureCookies:   cfg.SecureCookie,
		SameSite:        http.SameSiteLaxMode,
		DisableXSRF:     true,
	})

	return &Codec{name: name, tokens: tokens}
}

// Name returns the cookie name
func (c *Codec) Name() string {
	return c.name
}

// Read decodes the session cookie of r. A missing cookie yields (nil, nil).
// The returned session may be expired; callers decide whether to refresh it.
func (c *Codec) Read(r *http.Request) (*domain.Session, error) {
	cookie, err := r.Cookie(c.name)
	if errors.Is(err, http.ErrNoCookie) || (err == nil && cookie.Value == "") {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}

	claims, err := c.tokens.Parse(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	if c.tokens.IsExpired(claims) {
		return nil, fmt.Errorf("%w: cookie token expired", ErrInvalidCookie)
	}
	if claims.User == nil {
		return nil, fmt.Errorf("%w: no user in claims", ErrInvalidCookie)
	}

	session := &domain.Session{
		AccessToken:  claims.User.StrAttr(constants.AttrAccessToken),
		RefreshToken: claims.User.StrAttr(constants.AttrRefreshToken),
		UserID:       claims.User.ID,
		Email:        claims.User.Email,
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token in claims", ErrInvalidCookie)
	}
	if raw := claims.User.StrAttr(constants.AttrExpiresAt); raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad expiry %q", ErrInvalidCookie, raw)
		}
		session.ExpiresAt = time.Unix(unix, 0)
	}
	return session, nil
}

// Write sets the session cookie on w. A nil session clears it.
func (c *Codec) Write(w http.ResponseWriter, session *domain.Session) error {
	if session == nil {
		c.Clear(w)
		return nil
	}

	user := &token.User{
		ID:    session.UserID,
		Name:  session.Email,
		Email: session.Email,
	}
	user.SetStrAttr(constants.AttrAccessToken, session.AccessToken)
	user.SetStrAttr(constants.AttrRefreshToken, session.RefreshToken)
	if !session.ExpiresAt.IsZero() {
		user.SetStrAttr(constants.AttrExpiresAt, strconv.FormatInt(session.ExpiresAt.Unix(), 10))
	}

	if _, err := c.tokens.Set(w, token.Claims{User: user}); err != nil {
		return fmt.Errorf("failed to write session cookie: %w", err)
	}
	return nil
}

// Clear expires the session cookie on w
func (c *Codec) Clear(w http.ResponseWriter) {
	c.tokens.Reset(w)
}

// Sink adapts w to a domain.SessionSink
func (c *Codec) Sink(w http.ResponseWriter) domain.SessionSink {
	return &writerSink{codec: c, w: w}
}

type writerSink struct {
	codec *Codec
	w     http.ResponseWriter
}

func (s *writerSink) SetSession(session *domain.Session) error {
	if err := s.codec.Write(s.w, session); err != nil {
		slog.Warn("failed to set session cookie", "error", err)
		return err
	}
	return nil
}
