// Package session keeps the client-side copy of the provider session. The
// store is fed by a Source: one fetch of the current session at start, then
// every auth-state event the source emits.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
)

// Event is an auth-state change notification
type Event struct {
	Kind    string // constants.EventSignedIn, EventSignedOut or EventTokenRefreshed
	Session *domain.Session
}

// Source produces the current session and change notifications
type Source interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
	// Subscribe registers fn for every future event and returns a function
	// that removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Store holds the current session. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	current *domain.Session
	// version counts writes so a slow initial fetch cannot overwrite a newer
	// event or Set.
	version uint64

	ready       chan struct{}
	unsubscribe func()
	closeOnce   sync.Once
	logger      *slog.Logger
}

// NewStore subscribes to src and starts the initial fetch in the background.
// Ready is closed once the fetch finishes.
func NewStore(ctx context.Context, src Source) *Store {
	s := &Store{
		ready:  make(chan struct{}),
		logger: slog.Default().With("component", "session_store"),
	}

	// The store has seen no writes yet. Anything delivered from here on,
	// including events a source replays inside Subscribe, is newer than the
	// initial fetch.
	const startVersion = 0

	s.unsubscribe = src.Subscribe(s.handle)

	go func() {
		defer close(s.ready)

		session, err := src.CurrentSession(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "initial session fetch failed", "error", err)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.version != startVersion {
			s.logger.DebugContext(ctx, "initial session fetch superseded by a newer update")
			return
		}
		s.current = session
		s.version++
	}()

	return s
}

// Get returns the current session, or nil when signed out
func (s *Store) Get() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the current session
func (s *Store) Set(session *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = session
	s.version++
}

// SetSession implements domain.SessionSink
func (s *Store) SetSession(session *domain.Session) error {
	s.Set(session)
	return nil
}

// Ready is closed once the initial fetch has completed, successfully or not
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Close stops listening for events. The last known session is kept.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

func (s *Store) handle(event Event) {
	session := event.Session
	if event.Kind == constants.EventSignedOut {
		session = nil
	}

	s.logger.Debug("auth state changed", "event", event.Kind, "signed_in", session != nil)
	s.Set(session)
}
