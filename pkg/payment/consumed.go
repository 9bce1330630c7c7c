package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ErrAlreadyConsumed marks a proof that was admitted before. A consumed
// proof never verifies again, however many callers race on it.
var ErrAlreadyConsumed = errors.New("payment proof already consumed")

// ConsumedStore records admitted proofs. Consume is first-caller-wins:
// exactly one caller per proof sees nil, every other caller sees
// ErrAlreadyConsumed.
type ConsumedStore interface {
	Consume(proof string) error
	Seen(proof string) bool
}

// Fingerprint condenses a proof for storage so raw proofs never sit in
// the replay table.
func Fingerprint(proof string) string {
	sum := sha256.Sum256([]byte(proof))
	return hex.EncodeToString(sum[:])
}

// MemoryConsumedStore is the in-process ConsumedStore.
type MemoryConsumedStore struct {
	mu       sync.Mutex
	consumed map[string]time.Time
}

// NewMemoryConsumedStore creates an empty store.
func NewMemoryConsumedStore() *MemoryConsumedStore {
	return &MemoryConsumedStore{
		consumed: make(map[string]time.Time),
	}
}

// Consume marks the proof consumed, failing for every caller but the first.
func (s *MemoryConsumedStore) Consume(proof string) error {
	fp := Fingerprint(proof)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consumed[fp]; ok {
		return ErrAlreadyConsumed
	}
	s.consumed[fp] = time.Now()
	return nil
}

// Seen reports whether the proof was consumed before.
func (s *MemoryConsumedStore) Seen(proof string) bool {
	fp := Fingerprint(proof)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.consumed[fp]
	return ok
}

// Sweep drops entries older than maxAge and returns how many were
// removed. Entries past the challenge timeout can never verify again,
// so keeping them only grows the table.
func (s *MemoryConsumedStore) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for fp, at := range s.consumed {
		if at.Before(cutoff) {
			delete(s.consumed, fp)
			removed++
		}
	}
	return removed
}
