// Package rest talks to a hosted GoTrue/PostgREST backend (for example
// Supabase) over HTTP.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/autoscripty/internal/config"
	"github.com/autoscripty/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Client implements domain.IdentityProvider and domain.ScriptStore
type Client struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient HTTPClient
	breaker    *circuitBreaker
	now        func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for provider calls
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock replaces the clock used to compute session expiry
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithCircuitBreaker overrides the failure threshold and cooldown of the
// provider circuit breaker
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Client) {
		c.breaker.threshold = threshold
		c.breaker.cooldown = cooldown
	}
}

// NewClient creates a provider client for the configured project
func NewClient(cfg config.ProviderConfig, opts ...Option) *Client {
	table := cfg.ScriptTable
	if table == "" {
		table = "text-script"
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.PublicKey,
		table:      table,
		httpClient: newHTTPClient(cfg.Timeout),
		now:        time.Now,
	}
	c.breaker = newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, func() time.Time { return c.now() })
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

// signUpResponse is either a session (auto-confirmed projects) or the bare user
// object (confirmation required).
type signUpResponse struct {
	sessionResponse
	userResponse
}

type scriptRow struct {
	ID          json.RawMessage `json:"id,omitempty"`
	TitleScript string          `json:"title_script"`
	TextScript  string          `json:"text_script"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}

type errorResponse struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// SignUp registers a new identity
func (c *Client) SignUp(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	var resp signUpResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", credentialsRequest{Email: email, Password: password}, &resp, nil); err != nil {
		return nil, err
	}

	if resp.AccessToken != "" {
		session := c.toSession(resp.sessionResponse)
		return &domain.AuthResponse{User: toUser(resp.sessionResponse.User), Session: session}, nil
	}

	return &domain.AuthResponse{User: toUser(&resp.userResponse)}, nil
}

// SignInWithPassword exchanges credentials for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", credentialsRequest{Email: email, Password: password}, &resp, nil); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, domain.WrapTransport("sign in", fmt.Errorf("provider returned no access token"))
	}
	return &domain.AuthResponse{User: toUser(resp.User), Session: c.toSession(resp)}, nil
}

// RefreshSession exchanges a refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", refreshRequest{RefreshToken: refreshToken}, &resp, nil); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, domain.WrapTransport("refresh session", fmt.Errorf("provider returned no access token"))
	}
	return c.toSession(resp), nil
}

// SignOut revokes the session behind accessToken
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil, nil)
}

// InsertScript writes one row to the script table and returns it
func (c *Client) InsertScript(ctx context.Context, session *domain.Session, input domain.ScriptInput) (*domain.Script, error) {
	if session == nil || session.AccessToken == "" {
		return nil, domain.WrapUnauthorized(nil)
	}

	headers := map[string]string{
		"Prefer": "return=representation",
		"Accept": "application/vnd.pgrst.object+json",
	}
	row := scriptRow{TitleScript: input.Title, TextScript: input.Text}

	var raw json.RawMessage
	path := "/rest/v1/" + url.PathEscape(c.table)
	if err := c.do(ctx, http.MethodPost, path, session.AccessToken, row, &raw, headers); err != nil {
		return nil, err
	}

	stored, err := decodeRow(raw)
	if err != nil {
		return nil, domain.WrapTransport("create script", err)
	}

	script := &domain.Script{
		ID:    strings.Trim(string(stored.ID), `"`),
		Title: stored.TitleScript,
		Text:  stored.TextScript,
	}
	if stored.CreatedAt != nil {
		script.CreatedAt = *stored.CreatedAt
	}
	return script, nil
}

// decodeRow accepts a single object or a one-element array, depending on
// whether the provider honoured the object Accept header.
func decodeRow(raw json.RawMessage) (*scriptRow, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []scriptRow
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode inserted rows: %w", err)
		}
		if len(rows) != 1 {
			return nil, fmt.Errorf("expected 1 inserted row, got %d", len(rows))
		}
		return &rows[0], nil
	}

	var row scriptRow
	if err := json.Unmarshal(trimmed, &row); err != nil {
		return nil, fmt.Errorf("failed to decode inserted row: %w", err)
	}
	return &row, nil
}

// do sends one request. Provider answers with status >= 400 come back as
// *domain.ProviderError; failures to reach the provider or read its answer
// come back as transport errors.
func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domain.WrapTransport(path, fmt.Errorf("failed to create request: %w", err))
	}

	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	service := serviceOf(path)
	if err := c.breaker.Allow(service); err != nil {
		return domain.WrapTransport(path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A caller giving up says nothing about the provider's health.
		if ctx.Err() == nil {
			c.breaker.RecordFailure(service)
		}
		return domain.WrapTransport(path, err)
	}
	defer resp.Body.Close()

	if countsAsFailure(resp.StatusCode) {
		c.breaker.RecordFailure(service)
	} else {
		c.breaker.RecordSuccess(service)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapTransport(path, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	providerErr := &domain.ProviderError{Status: resp.StatusCode}

	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil {
		providerErr.Code = body.ErrorCode
		if providerErr.Code == "" {
			var code string
			if json.Unmarshal(body.Code, &code) == nil {
				providerErr.Code = code
			}
		}
		if providerErr.Code == "" {
			providerErr.Code = body.Error
		}
		providerErr.Message = firstNonEmpty(body.Msg, body.Message, body.ErrorDescription, body.Error)
	}

	if providerErr.Message == "" {
		providerErr.Message = strings.TrimSpace(string(data))
	}
	if providerErr.Message == "" {
		providerErr.Message = http.StatusText(resp.StatusCode)
	}
	return providerErr
}

func (c *Client) toSession(resp sessionResponse) *domain.Session {
	session := &domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}

	switch {
	case resp.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		session.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		session.ExpiresAt = tokenExpiry(resp.AccessToken)
	}

	if resp.User != nil {
		session.UserID = resp.User.ID
		session.Email = resp.User.Email
	} else if claims := tokenClaims(resp.AccessToken); claims != nil {
		session.UserID = claims.Subject
	}
	return session
}

// tokenExpiry reads exp from an access token without verifying it. The
// provider signed the token; this side only needs to know when to refresh.
func tokenExpiry(accessToken string) time.Time {
	claims := tokenClaims(accessToken)
	if claims == nil || claims.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(claims.ExpiresAt, 0)
}

func tokenClaims(accessToken string) *jwt.StandardClaims {
	claims := &jwt.StandardClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(accessToken, claims); err != nil {
		return nil
	}
	return claims
}

func toUser(resp *userResponse) domain.User {
	if resp == nil {
		return domain.User{}
	}
	return domain.User{ID: resp.ID, Email: resp.Email, ConfirmedAt: resp.EmailConfirmedAt}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
