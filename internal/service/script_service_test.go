package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/autoscripty/internal/domain"
	"github.com/autoscripty/internal/provider/memory"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// recordingStore records inserts and answers with err when set
type recordingStore struct {
	inserts []domain.ScriptInput
	err     error
}

func (s *recordingStore) InsertScript(_ context.Context, _ *domain.Session, input domain.ScriptInput) (*domain.Script, error) {
	s.inserts = append(s.inserts, input)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Script{ID: "1", Title: input.Title, Text: input.Text, CreatedAt: testNow}, nil
}

func setupTestScriptService(store domain.ScriptStore) *scriptService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newScriptService(store, nil, logger, func() time.Time { return testNow })
}

func validSession() *domain.Session {
	return &domain.Session{AccessToken: "access", UserID: "user-1", ExpiresAt: testNow.Add(time.Hour)}
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name        string
		input       domain.ScriptInput
		expectedMsg string
		fields      []string
	}{
		{
			name:        "title too short",
			input:       domain.ScriptInput{Title: "ab", Text: "0123456789"},
			expectedMsg: "title must be at least 3 characters",
			fields:      []string{"title"},
		},
		{
			name:        "title too long",
			input:       domain.ScriptInput{Title: strings.Repeat("a", 101), Text: "0123456789"},
			expectedMsg: "title must be at most 100 characters",
			fields:      []string{"title"},
		},
		{
			name:        "text too short",
			input:       domain.ScriptInput{Title: "abc", Text: "012345678"},
			expectedMsg: "text must be at least 10 characters",
			fields:      []string{"text"},
		},
		{
			name:        "both invalid, title first",
			input:       domain.ScriptInput{Title: "ab", Text: "short"},
			expectedMsg: "title must be at least 3 characters, text must be at least 10 characters",
			fields:      []string{"title", "text"},
		},
		{
			name:        "whitespace does not count",
			input:       domain.ScriptInput{Title: "  ab  ", Text: "   012345678   "},
			expectedMsg: "title must be at least 3 characters, text must be at least 10 characters",
			fields:      []string{"title", "text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			svc := setupTestScriptService(store)

			_, err := svc.Submit(context.Background(), validSession(), tt.input)
			if !domain.IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if msg := domain.PublicMessage(err); msg != tt.expectedMsg {
				t.Errorf("expected message %q, got %q", tt.expectedMsg, msg)
			}

			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatal("expected *domain.ValidationError")
			}
			if len(validationErr.Issues) != len(tt.fields) {
				t.Fatalf("expected %d issues, got %d", len(tt.fields), len(validationErr.Issues))
			}
			for i, field := range tt.fields {
				if validationErr.Issues[i].Field != field {
					t.Errorf("issue %d: expected field %s, got %s", i, field, validationErr.Issues[i].Field)
				}
			}

			if len(store.inserts) != 0 {
				t.Error("expected no insert for invalid payload")
			}
		})
	}
}

func TestSubmit_BoundaryLengths(t *testing.T) {
	tests := []struct {
		name  string
		input domain.ScriptInput
	}{
		{"minimum lengths", domain.ScriptInput{Title: "abc", Text: "0123456789"}},
		{"maximum title", domain.ScriptInput{Title: strings.Repeat("a", 100), Text: "0123456789"}},
		{"multibyte title counted in characters", domain.ScriptInput{Title: strings.Repeat("é", 100), Text: "ünïcødé tëxt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := setupTestScriptService(&recordingStore{})
			if _, err := svc.Submit(context.Background(), validSession(), tt.input); err != nil {
				t.Errorf("expected valid input, got %v", err)
			}
		})
	}
}

func TestSubmit_ValidationBeforeAuthorization(t *testing.T) {
	svc := setupTestScriptService(&recordingStore{})

	_, err := svc.Submit(context.Background(), nil, domain.ScriptInput{Title: "ab", Text: "short"})
	if !domain.IsValidationError(err) {
		t.Errorf("expected validation error to win over missing session, got %v", err)
	}
}

func TestSubmit_Unauthorized(t *testing.T) {
	tests := []struct {
		name    string
		session *domain.Session
		message string
	}{
		{"no session", nil, "Unauthorized: no session found"},
		{"expired session", &domain.Session{AccessToken: "a", ExpiresAt: testNow.Add(-time.Second)}, "Unauthorized: session expired"},
		{"empty token", &domain.Session{ExpiresAt: testNow.Add(time.Hour)}, "Unauthorized: session expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			svc := setupTestScriptService(store)

			_, err := svc.Submit(context.Background(), tt.session, domain.ScriptInput{Title: "abc", Text: "0123456789"})
			if !domain.IsUnauthorized(err) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
			if msg := domain.PublicMessage(err); msg != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, msg)
			}
			if len(store.inserts) != 0 {
				t.Error("expected no insert without a valid session")
			}
		})
	}
}

func TestSubmit_StoresTrimmedInput(t *testing.T) {
	store := &recordingStore{}
	svc := setupTestScriptService(store)

	script, err := svc.Submit(context.Background(), validSession(), domain.ScriptInput{Title: "  My title ", Text: "\tSome script text\n"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(store.inserts) != 1 {
		t.Fatalf("expected exactly one insert, got %d", len(store.inserts))
	}
	if store.inserts[0] != (domain.ScriptInput{Title: "My title", Text: "Some script text"}) {
		t.Errorf("expected trimmed insert, got %+v", store.inserts[0])
	}
	if script.Title != "My title" {
		t.Errorf("expected stored record to be returned, got %+v", script)
	}
}

func TestSubmit_StoreErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		check   func(error) bool
		message string
	}{
		{
			name:    "rejected write",
			err:     &domain.ProviderError{Status: http.StatusForbidden, Code: "42501", Message: "permission denied for table text-script"},
			check:   domain.IsPersistenceError,
			message: "Failed to create script: permission denied for table text-script",
		},
		{
			name:  "token no longer accepted",
			err:   &domain.ProviderError{Status: http.StatusUnauthorized, Code: codeJWTExpired, Message: "JWT expired"},
			check: domain.IsUnauthorized,
		},
		{
			name:  "transport failure passes through",
			err:   domain.WrapTransport("create script", errors.New("connection refused")),
			check: domain.IsTransportError,
		},
		{
			name:  "unexpected error",
			err:   errors.New("boom"),
			check: domain.IsTransportError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := setupTestScriptService(&recordingStore{err: tt.err})

			_, err := svc.Submit(context.Background(), validSession(), domain.ScriptInput{Title: "abc", Text: "0123456789"})
			if !tt.check(err) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			if tt.message != "" && domain.PublicMessage(err) != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, domain.PublicMessage(err))
			}
		})
	}
}

func TestSubmit_WithMemoryProvider(t *testing.T) {
	ctx := context.Background()
	provider := memory.NewProvider(memory.WithBcryptCost(bcrypt.MinCost))
	resp, err := provider.SignUp(ctx, "user@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	svc := NewScriptService(provider, nil, nil)
	script, err := svc.Submit(ctx, resp.Session, domain.ScriptInput{Title: "My title", Text: "Some script text"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if stored := provider.Scripts(); len(stored) != 1 || stored[0].ID != script.ID {
		t.Errorf("expected the script in the provider, got %+v", stored)
	}

	if err := provider.SignOut(ctx, resp.Session.AccessToken); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, err := svc.Submit(ctx, resp.Session, domain.ScriptInput{Title: "My title", Text: "Some script text"}); !domain.IsUnauthorized(err) {
		t.Errorf("expected a revoked session to be unauthorized, got %v", err)
	}
}
