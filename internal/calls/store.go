package calls

import (
	"errors"
	"sync"
)

var ErrDuplicateCallID = errors.New("calls: duplicate call id")

// Store holds live call sessions keyed by call ID.
// Reads return copies; mutation goes through Update.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create inserts s. An existing session with the same ID stays authoritative.
func (st *Store) Create(s Session) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.CallID]; ok {
		return Session{}, ErrDuplicateCallID
	}
	cp := s
	st.sessions[s.CallID] = &cp
	return cp, nil
}

func (st *Store) Get(callID string) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Update applies patch to the stored session. Reports false if absent.
func (st *Store) Update(callID string, patch func(*Session)) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[callID]
	if !ok {
		return Session{}, false
	}
	patch(s)
	return *s, true
}

// Remove deletes callID. Removing an absent ID is a no-op.
func (st *Store) Remove(callID string) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[callID]
	if !ok {
		return Session{}, false
	}
	delete(st.sessions, callID)
	return *s, true
}

// FindByConn returns sessions holding connID as either participant's handle.
func (st *Store) FindByConn(connID string) []Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []Session
	for _, s := range st.sessions {
		if connMatches(s.CallerConn, connID) || connMatches(s.ReceiverConn, connID) {
			out = append(out, *s)
		}
	}
	return out
}

// List returns a snapshot of every live session.
func (st *Store) List() []Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, *s)
	}
	return out
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func connMatches(c interface{ ID() string }, connID string) bool {
	return c != nil && c.ID() == connID
}
