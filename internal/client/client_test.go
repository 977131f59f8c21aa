package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/autoscripty/internal/config"
	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
	apihttp "github.com/autoscripty/internal/http"
	"github.com/autoscripty/internal/metrics"
	"github.com/autoscripty/internal/provider/memory"
	"github.com/autoscripty/internal/session"
)

const (
	testEmail    = "user@example.com"
	testPassword = "secret-pass"
)

func newTestServer(t *testing.T, opts ...memory.Option) (*httptest.Server, *memory.Provider) {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Provider:    config.ProviderConfig{URL: "memory://", PublicKey: "test"},
		Session: config.SessionConfig{
			Secret:         "test-secret",
			CookieName:     "scripty-session",
			CookieDuration: time.Hour,
		},
		Access: config.AccessConfig{Policy: config.DefaultPolicy()},
	}

	provider := memory.NewProvider(append([]memory.Option{memory.WithBcryptCost(bcrypt.MinCost)}, opts...)...)
	server := apihttp.NewServer(cfg, apihttp.Dependencies{
		Identity: provider,
		Scripts:  provider,
		Metrics:  metrics.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, provider
}

type recorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *recorder) record(event session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func equalKinds(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNew_InvalidURL(t *testing.T) {
	tests := []string{"://bad", "ftp://example.com", "localhost:8080"}
	for _, raw := range tests {
		if _, err := New(raw); err == nil {
			t.Errorf("New(%q) expected error", raw)
		}
	}
}

func TestClient_Lifecycle(t *testing.T) {
	ts, provider := newTestServer(t)
	ctx := context.Background()

	c, err := New(ts.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &recorder{}
	c.Subscribe(rec.record)

	result, err := c.SignUp(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !result.Success || result.Session == nil {
		t.Fatalf("SignUp() = %+v, want success with session", result)
	}

	current, err := c.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if current == nil || current.Email != testEmail {
		t.Fatalf("CurrentSession() = %+v, want session for %s", current, testEmail)
	}

	script, err := c.SubmitScript(ctx, domain.ScriptInput{Title: "  Opening  ", Text: "Fade in on a quiet street."})
	if err != nil {
		t.Fatalf("SubmitScript() error = %v", err)
	}
	if script.Title != "Opening" || script.ID == "" {
		t.Errorf("SubmitScript() = %+v, want stored trimmed script", script)
	}
	if got := len(provider.Scripts()); got != 1 {
		t.Errorf("provider holds %d scripts, want 1", got)
	}

	if result, err := c.SignOut(ctx); err != nil || !result.Success {
		t.Fatalf("SignOut() = %+v, %v", result, err)
	}

	current, err = c.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession() after sign out error = %v", err)
	}
	if current != nil {
		t.Errorf("CurrentSession() after sign out = %+v, want nil", current)
	}

	if kinds := rec.kinds(); !equalKinds(kinds, constants.EventSignedIn, constants.EventSignedOut) {
		t.Errorf("events = %v, want [SIGNED_IN SIGNED_OUT]", kinds)
	}
}

func TestClient_SignInFailures(t *testing.T) {
	ts, provider := newTestServer(t, memory.WithConfirmationRequired(true))
	ctx := context.Background()

	c, err := New(ts.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &recorder{}
	c.Subscribe(rec.record)

	result, err := c.SignUp(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !result.Success || result.Session != nil {
		t.Fatalf("SignUp() = %+v, want success pending confirmation", result)
	}

	result, err = c.SignIn(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if result.Success || !result.EmailNotConfirmed {
		t.Errorf("SignIn() unconfirmed = %+v, want email not confirmed", result)
	}

	if err := provider.Confirm(testEmail); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	result, err = c.SignIn(ctx, testEmail, "wrong-password")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if result.Success || result.Error != "Sign in failed: Invalid login credentials" {
		t.Errorf("SignIn() wrong password = %+v", result)
	}

	if kinds := rec.kinds(); len(kinds) != 0 {
		t.Errorf("events = %v, want none", kinds)
	}
}

func TestClient_SubmitScriptErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()

	t.Run("invalid input is rejected locally", func(t *testing.T) {
		unreachable := httptest.NewServer(nil)
		unreachable.Close()

		c, err := New(unreachable.URL)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		_, err = c.SubmitScript(ctx, domain.ScriptInput{Title: "", Text: ""})
		var validationErr *domain.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("SubmitScript() error = %v, want validation error", err)
		}
		if len(validationErr.Issues) != 2 {
			t.Errorf("issues = %+v, want title and text", validationErr.Issues)
		}
	})

	t.Run("no session", func(t *testing.T) {
		c, err := New(ts.URL)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		_, err = c.SubmitScript(ctx, domain.ScriptInput{Title: "Opening", Text: "Fade in on a quiet street."})
		if !domain.IsUnauthorized(err) {
			t.Fatalf("SubmitScript() error = %v, want unauthorized", err)
		}
		if msg := domain.PublicMessage(err); msg != "Unauthorized: no session found" {
			t.Errorf("message = %q", msg)
		}
	})

	t.Run("server unreachable", func(t *testing.T) {
		unreachable := httptest.NewServer(nil)
		unreachable.Close()

		c, err := New(unreachable.URL, WithTimeout(time.Second))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		_, err = c.SubmitScript(ctx, domain.ScriptInput{Title: "Opening", Text: "Fade in on a quiet street."})
		if !domain.IsTransportError(err) {
			t.Errorf("SubmitScript() error = %v, want transport error", err)
		}
	})
}

func TestClient_ServerErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		insertErr error
		check     func(error) bool
		wantMsg   string
	}{
		{
			name:      "store rejects the write",
			insertErr: &domain.ProviderError{Status: 403, Code: "42501", Message: "permission denied"},
			check:     domain.IsPersistenceError,
			wantMsg:   "Failed to create script: permission denied",
		},
		{
			name:      "unexpected failure",
			insertErr: errors.New("connection reset by peer"),
			check:     domain.IsTransportError,
			wantMsg:   "Unexpected error during create script: connection reset by peer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, provider := newTestServer(t)
			ctx := context.Background()

			c, err := New(ts.URL)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if _, err := c.SignUp(ctx, testEmail, testPassword); err != nil {
				t.Fatalf("SignUp() error = %v", err)
			}
			provider.FailInserts(tt.insertErr)

			_, err = c.SubmitScript(ctx, domain.ScriptInput{Title: "Opening", Text: "Fade in on a quiet street."})
			if !tt.check(err) {
				t.Fatalf("SubmitScript() error = %v, wrong kind", err)
			}
			if msg := domain.PublicMessage(err); msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestClient_CookieFile(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scripty", "cookies.json")

	first, err := New(ts.URL, WithCookieFile(path))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := first.SignUp(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	second, err := New(ts.URL, WithCookieFile(path))
	if err != nil {
		t.Fatalf("New() with saved cookies error = %v", err)
	}
	current, err := second.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if current == nil || current.Email != testEmail {
		t.Fatalf("CurrentSession() from cookie file = %+v", current)
	}

	if _, err := second.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	third, err := New(ts.URL, WithCookieFile(path))
	if err != nil {
		t.Fatalf("New() after sign out error = %v", err)
	}
	if current, err := third.CurrentSession(ctx); err != nil || current != nil {
		t.Errorf("CurrentSession() after sign out = %+v, %v; want nil", current, err)
	}
}

func TestClient_CookieFileExpiry(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cookies.json")

	c, err := New(ts.URL, WithCookieFile(path))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.SignUp(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("cookie file is not valid JSON: %v", err)
	}

	var found bool
	for i := range stored {
		if stored[i].Name != "scripty-session" {
			continue
		}
		found = true
		if !stored[i].Expires.After(time.Now()) {
			t.Errorf("saved expiry = %v, want a time in the future", stored[i].Expires)
		}
		stored[i].Expires = time.Now().Add(-time.Minute)
	}
	if !found {
		t.Fatalf("cookie file %s has no session cookie", data)
	}

	data, err = json.Marshal(stored)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	reloaded, err := New(ts.URL, WithCookieFile(path))
	if err != nil {
		t.Fatalf("New() with expired cookie error = %v", err)
	}
	if current, err := reloaded.CurrentSession(ctx); err != nil || current != nil {
		t.Errorf("CurrentSession() with expired saved cookie = %+v, %v; want nil", current, err)
	}
}

func TestClient_CookieFileWriteFailure(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()

	// A regular file where the cookie directory should be makes every save fail.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var logs bytes.Buffer
	c, err := New(ts.URL,
		WithCookieFile(filepath.Join(t.TempDir(), "cookies.json")),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.cookieFile = filepath.Join(blocker, "cookies.json")

	result, err := c.SignUp(ctx, testEmail, testPassword)
	if err != nil || !result.Success {
		t.Fatalf("SignUp() = %+v, %v; want success despite the cookie file", result, err)
	}
	if !strings.Contains(logs.String(), "failed to save session cookie") {
		t.Errorf("expected a warning about the cookie file, got %q", logs.String())
	}
}

func TestClient_TokenRefreshEvent(t *testing.T) {
	var offset atomic.Int64
	offset.Store(int64(-2 * time.Hour))
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }

	ts, _ := newTestServer(t, memory.WithClock(clock), memory.WithTokenTTL(time.Hour))
	ctx := context.Background()

	c, err := New(ts.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	signedIn, err := c.SignUp(ctx, testEmail, testPassword)
	if err != nil || signedIn.Session == nil {
		t.Fatalf("SignUp() = %+v, %v", signedIn, err)
	}

	rec := &recorder{}
	c.Subscribe(rec.record)

	// The issued session expired an hour ago; the provider now mints fresh ones.
	offset.Store(0)

	current, err := c.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if current == nil || !current.Valid(time.Now()) {
		t.Fatalf("CurrentSession() = %+v, want refreshed session", current)
	}
	if current.AccessToken == signedIn.Session.AccessToken {
		t.Error("access token was not refreshed")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || rec.events[0].Kind != constants.EventTokenRefreshed {
		t.Fatalf("events = %+v, want one TOKEN_REFRESHED", rec.events)
	}
	if got := rec.events[0].Session; got == nil || got.AccessToken != current.AccessToken {
		t.Errorf("refreshed event session = %+v, want %s", got, current.AccessToken)
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()

	c, err := New(ts.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &recorder{}
	unsubscribe := c.Subscribe(rec.record)
	unsubscribe()

	if _, err := c.SignUp(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if kinds := rec.kinds(); len(kinds) != 0 {
		t.Errorf("events after unsubscribe = %v", kinds)
	}
}

func TestClient_FeedsSessionStore(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()

	c, err := New(ts.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	store := session.NewStore(ctx, c)
	defer store.Close()

	select {
	case <-store.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("store never became ready")
	}
	if s := store.Get(); s != nil {
		t.Fatalf("store before sign in = %+v, want nil", s)
	}

	if _, err := c.SignUp(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if s := store.Get(); s == nil || s.Email != testEmail {
		t.Fatalf("store after sign in = %+v", s)
	}

	if _, err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if s := store.Get(); s != nil {
		t.Errorf("store after sign out = %+v, want nil", s)
	}
}
