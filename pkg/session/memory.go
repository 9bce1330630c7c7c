package session

import (
	"context"
	"sync"
	"time"

	"github.com/Imdavyking/PayperAI/internal/observability"
)

// MemoryStore keeps session logs in process memory. Sessions are
// created lazily on first append; appends to one session serialize on a
// per-session lock while independent sessions proceed concurrently.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
	locks    map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	observability.EnsureRegistered()
	return &MemoryStore{
		sessions: make(map[string][]Message),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[sessionID] = lock
	return lock
}

// Append adds a message to the session, creating it if needed.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, msg Message) error {
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkToolReference(s.sessions[sessionID], msg); err != nil {
		return err
	}

	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
	observability.SetActiveSessions(len(s.sessions))
	return nil
}

// History returns the session's messages in append order. Unknown
// sessions yield an empty slice.
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear removes the session log. Clearing a session that does not exist
// is a no-op.
func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	delete(s.locks, sessionID)
	observability.SetActiveSessions(len(s.sessions))
	return nil
}
