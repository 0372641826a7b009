package sessionstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in a mutex-guarded map. Suitable for development
// and tests; sessions vanish when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get retrieves a session by ID. The returned session is a deep copy, so
// callers can mutate it freely before the next Put.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopySession(session), nil
}

// Put persists a deep copy of the session.
func (s *MemoryStore) Put(ctx context.Context, session *Session) error {
	if session == nil {
		return ErrInvalidSession
	}
	if session.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = deepCopySession(session)
	return nil
}

// List returns copies of every stored session, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, deepCopySession(session))
	}
	sortSessions(out)
	return out, nil
}

// Delete removes a session by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Fork copies an existing session under a new ID, stamping a fresh creation
// time, and returns the stored copy.
func (s *MemoryStore) Fork(ctx context.Context, sourceID, newID string) (*Session, error) {
	if sourceID == "" || newID == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.sessions[sourceID]
	if !ok {
		return nil, ErrNotFound
	}

	forked := deepCopySession(source)
	forked.ID = newID
	forked.CreatedAt = time.Now().UTC()
	s.sessions[newID] = forked
	return deepCopySession(forked), nil
}

// sortSessions orders newest first, breaking creation-time ties by ID so
// listings are stable.
func sortSessions(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// deepCopySession copies through JSON. Sessions are small and always
// marshalable, so the round trip is the simplest reliable copy.
func deepCopySession(session *Session) *Session {
	data, err := json.Marshal(session)
	if err != nil {
		return nil
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}
