package player

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or evicted sessions
var ErrNotFound = errors.New("session not found")

// Store keeps live sessions in memory. Sessions are not safe for concurrent
// use, so every access goes through Do, which serializes calls per session.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
}

type entry struct {
	mu       sync.Mutex
	session  *Session
	lastUsed time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*entry)}
}

// Save adds a session
func (s *Store) Save(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = &entry{session: session, lastUsed: time.Now()}
}

// Do runs fn with exclusive access to session id
func (s *Store) Do(id uuid.UUID, fn func(*Session) error) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = time.Now()
	return fn(e.session)
}

// Delete removes a session
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and returns how many
// were dropped. Finished sessions count as idle.
func (s *Store) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, e := range s.sessions {
		// A session in use holds its lock; skip it this round
		if !e.mu.TryLock() {
			continue
		}
		if e.session.Finished() || e.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			dropped++
		}
		e.mu.Unlock()
	}
	return dropped
}
