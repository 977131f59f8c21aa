package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/autoscripty/internal/constants"
	"github.com/autoscripty/internal/domain"
)

// fakeSource blocks CurrentSession until release is closed
type fakeSource struct {
	mu        sync.Mutex
	listeners map[int]func(Event)
	nextID    int

	session *domain.Session
	err     error
	release chan struct{}
}

func newFakeSource(session *domain.Session, err error) *fakeSource {
	return &fakeSource{
		listeners: make(map[int]func(Event)),
		session:   session,
		err:       err,
		release:   make(chan struct{}),
	}
}

func (f *fakeSource) CurrentSession(ctx context.Context) (*domain.Session, error) {
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.session, f.err
}

func (f *fakeSource) Subscribe(fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeSource) emit(event Event) {
	f.mu.Lock()
	listeners := make([]func(Event), 0, len(f.listeners))
	for _, fn := range f.listeners {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(event)
	}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func waitReady(t *testing.T, s *Store) {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("store never became ready")
	}
}

func TestStore_InitialFetch(t *testing.T) {
	initial := &domain.Session{AccessToken: "initial"}
	src := newFakeSource(initial, nil)
	store := NewStore(context.Background(), src)
	defer store.Close()

	if store.Get() != nil {
		t.Error("expected no session before the fetch completes")
	}

	close(src.release)
	waitReady(t, store)

	if store.Get() != initial {
		t.Errorf("expected initial session, got %+v", store.Get())
	}
}

func TestStore_InitialFetchError(t *testing.T) {
	src := newFakeSource(nil, errors.New("provider unreachable"))
	store := NewStore(context.Background(), src)
	defer store.Close()

	close(src.release)
	waitReady(t, store)

	if store.Get() != nil {
		t.Errorf("expected no session after a failed fetch, got %+v", store.Get())
	}
}

func TestStore_Events(t *testing.T) {
	src := newFakeSource(nil, nil)
	close(src.release)
	store := NewStore(context.Background(), src)
	defer store.Close()
	waitReady(t, store)

	signedIn := &domain.Session{AccessToken: "a1"}
	refreshed := &domain.Session{AccessToken: "a2"}

	tests := []struct {
		name  string
		event Event
		want  *domain.Session
	}{
		{"signed in", Event{Kind: constants.EventSignedIn, Session: signedIn}, signedIn},
		{"token refreshed", Event{Kind: constants.EventTokenRefreshed, Session: refreshed}, refreshed},
		{"signed out", Event{Kind: constants.EventSignedOut, Session: refreshed}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src.emit(tt.event)
			if got := store.Get(); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestStore_StaleInitialFetchDoesNotOverwrite(t *testing.T) {
	t.Run("event", func(t *testing.T) {
		src := newFakeSource(&domain.Session{AccessToken: "stale"}, nil)
		store := NewStore(context.Background(), src)
		defer store.Close()

		fresh := &domain.Session{AccessToken: "fresh"}
		src.emit(Event{Kind: constants.EventSignedIn, Session: fresh})

		close(src.release)
		waitReady(t, store)

		if store.Get() != fresh {
			t.Errorf("expected event session to win, got %+v", store.Get())
		}
	})

	t.Run("sign out", func(t *testing.T) {
		src := newFakeSource(&domain.Session{AccessToken: "stale"}, nil)
		store := NewStore(context.Background(), src)
		defer store.Close()

		src.emit(Event{Kind: constants.EventSignedOut})

		close(src.release)
		waitReady(t, store)

		if store.Get() != nil {
			t.Errorf("expected sign out to win, got %+v", store.Get())
		}
	})

	t.Run("explicit set", func(t *testing.T) {
		src := newFakeSource(&domain.Session{AccessToken: "stale"}, nil)
		store := NewStore(context.Background(), src)
		defer store.Close()

		override := &domain.Session{AccessToken: "override"}
		store.Set(override)

		close(src.release)
		waitReady(t, store)

		if store.Get() != override {
			t.Errorf("expected Set to win, got %+v", store.Get())
		}
	})
}

// replayingSource delivers the current state to every new subscriber before
// Subscribe returns
type replayingSource struct {
	*fakeSource
	replay Event
}

func (r *replayingSource) Subscribe(fn func(Event)) func() {
	unsubscribe := r.fakeSource.Subscribe(fn)
	fn(r.replay)
	return unsubscribe
}

func TestStore_EventDuringSubscribeWins(t *testing.T) {
	replayed := &domain.Session{AccessToken: "a"}
	src := &replayingSource{
		fakeSource: newFakeSource(nil, nil),
		replay:     Event{Kind: constants.EventSignedIn, Session: replayed},
	}
	close(src.release)

	store := NewStore(context.Background(), src)
	defer store.Close()
	waitReady(t, store)

	if store.Get() != replayed {
		t.Errorf("expected the session delivered during Subscribe to survive the initial fetch, got %+v", store.Get())
	}
}

func TestStore_Close(t *testing.T) {
	src := newFakeSource(nil, nil)
	close(src.release)
	store := NewStore(context.Background(), src)
	waitReady(t, store)

	if src.subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", src.subscribers())
	}

	store.Close()
	store.Close()

	if src.subscribers() != 0 {
		t.Errorf("expected Close to unsubscribe, got %d subscribers", src.subscribers())
	}

	src.emit(Event{Kind: constants.EventSignedIn, Session: &domain.Session{AccessToken: "late"}})
	if store.Get() != nil {
		t.Error("expected events after Close to be ignored")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	src := newFakeSource(nil, nil)
	close(src.release)
	store := NewStore(context.Background(), src)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			src.emit(Event{Kind: constants.EventTokenRefreshed, Session: &domain.Session{AccessToken: "t"}})
		}()
		go func() {
			defer wg.Done()
			store.Set(nil)
		}()
		go func() {
			defer wg.Done()
			_ = store.Get()
		}()
	}
	wg.Wait()
	waitReady(t, store)
}

func TestStore_CanceledContext(t *testing.T) {
	src := newFakeSource(&domain.Session{AccessToken: "never"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	store := NewStore(ctx, src)
	defer store.Close()

	cancel()
	waitReady(t, store)

	if store.Get() != nil {
		t.Error("expected no session when the fetch is canceled")
	}
}

func TestStore_ImplementsSessionSink(t *testing.T) {
	src := newFakeSource(nil, nil)
	close(src.release)
	store := NewStore(context.Background(), src)
	defer store.Close()

	var sink domain.SessionSink = store
	session := &domain.Session{AccessToken: "sink"}
	if err := sink.SetSession(session); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}
	if store.Get() != session {
		t.Error("expected SetSession to replace the session")
	}
}
