// Package client is a Go client for the Auto Scripty HTTP API. It keeps the
// session cookie in a cookie jar, optionally persisted to a file, and reports
// auth-state changes to subscribers so it can feed a session.Store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/autoscripty/internal/apipaths"
	"github.com/autoscripty/internal/auth"
	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/session"
	"github.com/autoscripty/internal/validation"
)

const defaultTimeout = 15 * time.Second

// Client talks to one Auto Scripty server
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	jar        *cookiejar.Jar
	cookieName string
	cookieFile string
	logger     *slog.Logger

	mu        sync.Mutex
	listeners map[int]func(session.Event)
	nextID    int
	// expiries remembers cookie expiry times for the cookie file; the jar
	// does not expose them.
	expiries map[string]time.Time
}

// Option configures a Client
type Option func(*Client)

// WithCookieName sets the session cookie name used by the server
func WithCookieName(name string) Option {
	return func(c *Client) {
		c.cookieName = name
	}
}

// WithCookieFile persists the session cookie to path between runs
func WithCookieFile(path string) Option {
	return func(c *Client) {
		c.cookieFile = path
	}
}

// WithLogger sets the logger for non-fatal client problems
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		jar:     jar,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: defaultTimeout,
			// Redirects are part of the API contract; surface them instead
			// of following them.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cookieName: "scripty-session",
		logger:     slog.Default(),
		listeners:  make(map[int]func(session.Event)),
		expiries:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cookieFile != "" {
		if err := c.loadCookies(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type submitResponse struct {
	Success bool                     `json:"success"`
	Data    *domain.Script           `json:"data"`
	Error   string                   `json:"error"`
	Code    string                   `json:"code"`
	Details []domain.ValidationIssue `json:"details"`
}

type sessionResponse struct {
	Session *domain.Session `json:"session"`
}

// SignUp registers a new identity. A returned session is announced to
// subscribers as a sign-in.
func (c *Client) SignUp(ctx context.Context, email, password string) (auth.Result, error) {
	return c.authenticate(ctx, apipaths.SignUp, email, password)
}

// SignIn exchanges credentials for a session cookie
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Result, error) {
	return c.authenticate(ctx, apipaths.SignIn, email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (auth.Result, error) {
	var result auth.Result
	if _, err := c.do(ctx, http.MethodPost, path, credentials{Email: email, Password: password}, &result); err != nil {
		return auth.Result{}, err
	}
	if result.Success && result.Session != nil {
		c.emit(session.Event{Kind: constants.EventSignedIn, Session: result.Session})
	}
	return result, nil
}

// SignOut revokes the session and drops the cookie
func (c *Client) SignOut(ctx context.Context) (auth.Result, error) {
	var result auth.Result
	if _, err := c.do(ctx, http.MethodPost, apipaths.SignOut, nil, &result); err != nil {
		return auth.Result{}, err
	}
	if result.Success {
		c.emit(session.Event{Kind: constants.EventSignedOut})
	}
	return result, nil
}

// SubmitScript validates input locally, then stores it on the server. Errors
// carry the same kinds the server distinguishes.
func (c *Client) SubmitScript(ctx context.Context, input domain.ScriptInput) (*domain.Script, error) {
	if err := validation.ValidateScript(input); err != nil {
		return nil, err
	}

	var resp submitResponse
	status, err := c.do(ctx, http.MethodPost, apipaths.Scripts, input, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Success && resp.Data != nil {
		return resp.Data, nil
	}

	switch resp.Code {
	case domain.ErrValidationFailed.Code:
		if len(resp.Details) > 0 {
			return nil, &domain.ValidationError{Issues: resp.Details}
		}
		return nil, domain.NewDomainError(resp.Code, resp.Error, nil)
	case domain.ErrUnauthorized.Code, domain.ErrPersistence.Code, domain.ErrTransport.Code:
		return nil, domain.NewDomainError(resp.Code, resp.Error, nil)
	default:
		return nil, domain.WrapTransport("create script", fmt.Errorf("server answered %d: %s", status, resp.Error))
	}
}

// CurrentSession implements session.Source
func (c *Client) CurrentSession(ctx context.Context) (*domain.Session, error) {
	var resp sessionResponse
	if _, err := c.do(ctx, http.MethodGet, apipaths.Session, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Session, nil
}

// Subscribe implements session.Source
func (c *Client) Subscribe(fn func(session.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Client) emit(event session.Event) {
	c.mu.Lock()
	listeners := make([]func(session.Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// do sends one JSON request and decodes the JSON answer into out whatever the
// status. Failures to reach the server or read its answer are errors, and so
// is a redirect, which the access middleware only issues to visitors without
// a session.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, domain.WrapTransport(path, err)
	}
	defer resp.Body.Close()

	c.observeCookies(ctx, path, resp)

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return resp.StatusCode, domain.WrapUnauthorized(fmt.Errorf("redirected to %s", resp.Header.Get("Location")))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, domain.WrapTransport(path, fmt.Errorf("failed to decode %d response: %w", resp.StatusCode, err))
		}
	}
	return resp.StatusCode, nil
}

// observeCookies reports session cookie changes made by any response other
// than the auth calls themselves: a new value is a refresh, a reset is a
// sign-out decided by the server.
func (c *Client) observeCookies(ctx context.Context, path string, resp *http.Response) {
	var cookie *http.Cookie
	for _, candidate := range resp.Cookies() {
		c.rememberExpiry(candidate)
		if candidate.Name == c.cookieName {
			cookie = candidate
		}
	}
	if cookie == nil {
		return
	}

	if c.cookieFile != "" {
		if err := c.saveCookies(); err != nil {
			c.logger.WarnContext(ctx, "failed to save session cookie", "path", c.cookieFile, "error", err)
		}
	}

	switch path {
	case apipaths.SignIn, apipaths.SignUp, apipaths.SignOut:
		return
	}

	if cookie.Value == "" || cookie.MaxAge < 0 {
		c.emit(session.Event{Kind: constants.EventSignedOut})
		return
	}
	if refreshed, err := decodeCookie(cookie.Value); err == nil {
		c.emit(session.Event{Kind: constants.EventTokenRefreshed, Session: refreshed})
	}
}
