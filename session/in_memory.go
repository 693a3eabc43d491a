package session

import (
	"context"
	"sync"

	"github.com/hupe1980/adkservice/core"
)

var _ core.SessionStore = (*InMemoryStore)(nil)

// InMemoryStore is a volatile SessionStore backed by a map. It is safe for
// concurrent access. Returned sessions are clones.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create creates (or resets) the session with the given id.
func (s *InMemoryStore) Create(ctx context.Context, id string) (*core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := core.NewSession(id)
	s.sessions[id] = sess

	return sess.Clone(), nil
}

// Get returns a clone of the session, creating it when absent.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookupLocked(id).Clone(), nil
}

// AppendEvent adds an event to the session history.
func (s *InMemoryStore) AppendEvent(ctx context.Context, id string, ev core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookupLocked(id).AddEvent(ev)

	return nil
}

// ApplyDelta merges a key/value delta into the session state.
func (s *InMemoryStore) ApplyDelta(ctx context.Context, id string, delta map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(delta) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookupLocked(id).MergeState(delta)

	return nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)

	return nil
}

// lookupLocked returns the stored session, creating it if needed.
// Caller holds s.mu.
func (s *InMemoryStore) lookupLocked(id string) *core.Session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = core.NewSession(id)
		s.sessions[id] = sess
	}

	return sess
}
