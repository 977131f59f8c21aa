// Package memory is an in-process identity provider and script store. It
// answers the way the hosted provider does, including confirmation gating, so
// the rest of the application can run without a network.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/autoscripty/internal/domain"
)

// Provider error codes, as reported by the hosted provider
const (
	CodeUserAlreadyExists  = "user_already_exists"
	CodeInvalidCredentials = "invalid_credentials"
	CodeRefreshNotFound    = "refresh_token_not_found"
	CodeBadJWT             = "bad_jwt"
)

const defaultTokenTTL = time.Hour

type user struct {
	id          string
	email       string
	hash        []byte
	confirmedAt *time.Time
}

// Provider implements domain.IdentityProvider and domain.ScriptStore in memory
type Provider struct {
	mu sync.Mutex

	users         map[string]*user  // by lowercased email
	refreshTokens map[string]string // refresh token -> user id
	revoked       map[string]struct{}
	scripts       []domain.Script
	insertErr     error

	requireConfirmation bool
	signingKey          []byte
	tokenTTL            time.Duration
	bcryptCost          int
	now                 func() time.Time
}

// Option configures a Provider
type Option func(*Provider)

// WithConfirmationRequired holds new identities until Confirm is called
func WithConfirmationRequired(required bool) Option {
	return func(p *Provider) {
		p.requireConfirmation = required
	}
}

// WithSigningKey sets the HMAC key used to mint access tokens
func WithSigningKey(key []byte) Option {
	return func(p *Provider) {
		p.signingKey = key
	}
}

// WithTokenTTL sets the lifetime of minted access tokens
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.tokenTTL = ttl
	}
}

// WithBcryptCost sets the password hashing cost
func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		p.bcryptCost = cost
	}
}

// WithClock replaces the clock used for token issue and expiry
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider creates an empty provider
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		users:         make(map[string]*user),
		refreshTokens: make(map[string]string),
		revoked:       make(map[string]struct{}),
		tokenTTL:      defaultTokenTTL,
		bcryptCost:    bcrypt.DefaultCost,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.signingKey) == 0 {
		p.signingKey = []byte(randomToken())
	}
	return p
}

// SignUp registers a new identity. When confirmation is required the response
// carries no session.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapTransport("sign up", err)
	}

	key := strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, &domain.ProviderError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: err.Error()}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.users[key]; exists {
		return nil, &domain.ProviderError{
			Status:  http.StatusUnprocessableEntity,
			Code:    CodeUserAlreadyExists,
			Message: "User already registered",
		}
	}

	u := &user{id: uuid.NewString(), email: key, hash: hash}
	if !p.requireConfirmation {
		now := p.now()
		u.confirmedAt = &now
	}
	p.users[key] = u

	resp := &domain.AuthResponse{User: u.toDomain()}
	if u.confirmedAt == nil {
		return resp, nil
	}

	session, err := p.issueLocked(u)
	if err != nil {
		return nil, err
	}
	resp.Session = session
	return resp, nil
}

// SignInWithPassword exchanges credentials for a session
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapTransport("sign in", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		return nil, &domain.ProviderError{
			Status:  http.StatusBadRequest,
			Code:    CodeInvalidCredentials,
			Message: "Invalid login credentials",
		}
	}
	if u.confirmedAt == nil {
		return nil, &domain.ProviderError{
			Status:  http.StatusBadRequest,
			Code:    domain.ProviderErrorCodeEmailNotConfirmed,
			Message: "Email not confirmed",
		}
	}

	session, err := p.issueLocked(u)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResponse{User: u.toDomain(), Session: session}, nil
}

// RefreshSession rotates a refresh token into a new session
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapTransport("refresh session", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.refreshTokens[refreshToken]
	if !ok {
		return nil, &domain.ProviderError{
			Status:  http.StatusBadRequest,
			Code:    CodeRefreshNotFound,
			Message: "Invalid Refresh Token: Refresh Token Not Found",
		}
	}
	delete(p.refreshTokens, refreshToken)

	u := p.userByIDLocked(userID)
	if u == nil {
		return nil, &domain.ProviderError{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	return p.issueLocked(u)
}

// SignOut revokes the access token and every refresh token of its user
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapTransport("sign out", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	claims, err := p.verifyLocked(accessToken)
	if err != nil {
		return err
	}

	p.revoked[accessToken] = struct{}{}
	for token, userID := range p.refreshTokens {
		if userID == claims.Subject {
			delete(p.refreshTokens, token)
		}
	}
	return nil
}

// InsertScript stores a row on behalf of the session's bearer
func (p *Provider) InsertScript(ctx context.Context, session *domain.Session, input domain.ScriptInput) (*domain.Script, error) {
	if session == nil || session.AccessToken == "" {
		return nil, domain.WrapUnauthorized(nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.WrapTransport("create script", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.verifyLocked(session.AccessToken); err != nil {
		return nil, err
	}
	if p.insertErr != nil {
		return nil, p.insertErr
	}

	script := domain.Script{
		ID:        uuid.NewString(),
		Title:     input.Title,
		Text:      input.Text,
		CreatedAt: p.now().UTC(),
	}
	p.scripts = append(p.scripts, script)
	return &script, nil
}

// Confirm completes the email confirmation of a pending identity
func (p *Provider) Confirm(email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return fmt.Errorf("no identity registered for %s", email)
	}
	if u.confirmedAt == nil {
		now := p.now()
		u.confirmedAt = &now
	}
	return nil
}

// FailInserts makes every following InsertScript return err. A nil err
// restores normal operation.
func (p *Provider) FailInserts(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insertErr = err
}

// Scripts returns a copy of the stored rows in insertion order
func (p *Provider) Scripts() []domain.Script {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Script, len(p.scripts))
	copy(out, p.scripts)
	return out
}

func (p *Provider) issueLocked(u *user) (*domain.Session, error) {
	now := p.now()
	expiresAt := now.Add(p.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Id:        uuid.NewString(),
		Subject:   u.id,
		Audience:  "authenticated",
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	accessToken, err := token.SignedString(p.signingKey)
	if err != nil {
		return nil, domain.WrapTransport("issue session", fmt.Errorf("failed to sign access token: %w", err))
	}

	refreshToken := randomToken()
	p.refreshTokens[refreshToken] = u.id

	return &domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Unix(expiresAt.Unix(), 0),
		UserID:       u.id,
		Email:        u.email,
	}, nil
}

// verifyLocked checks signature, expiry against the provider clock and
// revocation.
func (p *Provider) verifyLocked(accessToken string) (*jwt.StandardClaims, error) {
	unauthorized := func(msg string) error {
		return &domain.ProviderError{Status: http.StatusUnauthorized, Code: CodeBadJWT, Message: msg}
	}

	claims := &jwt.StandardClaims{}
	parser := &jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(accessToken, claims, func(*jwt.Token) (interface{}, error) {
		return p.signingKey, nil
	})
	if err != nil {
		return nil, unauthorized("invalid JWT: " + err.Error())
	}
	if !p.now().Before(time.Unix(claims.ExpiresAt, 0)) {
		return nil, unauthorized("JWT expired")
	}
	if _, ok := p.revoked[accessToken]; ok {
		return nil, unauthorized("session revoked")
	}
	if p.userByIDLocked(claims.Subject) == nil {
		return nil, unauthorized("user not found")
	}
	return claims, nil
}

func (p *Provider) userByIDLocked(id string) *user {
	for _, u := range p.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

func (u *user) toDomain() domain.User {
	return domain.User{ID: u.id, Email: u.email, ConfirmedAt: u.confirmedAt}
}

func randomToken() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
