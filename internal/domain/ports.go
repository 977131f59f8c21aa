package domain

import (
	"context"
)

// ============================================================================
// Secondary Ports (Provider)
// ============================================================================

// IdentityProvider is the external identity service
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// ScriptStore persists scripts. The session is passed through so stores that
// enforce row-level policies can act on behalf of the caller.
type ScriptStore interface {
	InsertScript(ctx context.Context, session *Session, input ScriptInput) (*Script, error)
}

// ============================================================================
// Primary Ports (Application Use Cases)
// ============================================================================

// ScriptService defines the primary port for script submission
type ScriptService interface {
	Submit(ctx context.Context, session *Session, input ScriptInput) (*Script, error)
}

// SessionSink receives the session produced by an auth operation. A nil
// session clears whatever the sink holds.
type SessionSink interface {
	SetSession(session *Session) error
}
