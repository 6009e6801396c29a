// Package idempotency guards request keys so a retried request replays the first response
// instead of running twice.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrEmptyKey = errors.New("idempotency: key is required")

type State int

const (
	// Acquired means the caller owns the key and must Complete or Release it.
	Acquired State = iota
	// InFlight means another request holds the key and has not finished.
	InFlight
	// Completed means the key finished earlier; Claim.Response holds the stored response.
	Completed
)

func (s State) String() string {
	switch s {
	case Acquired:
		return "acquired"
	case InFlight:
		return "in_flight"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

type Claim struct {
	State    State
	Response []byte
}

type Store interface {
	Claim(ctx context.Context, key string) (Claim, error)
	Complete(ctx context.Context, key string, response []byte) error
	Release(ctx context.Context, key string) error
}

type memEntry struct {
	done     bool
	response []byte
	expires  time.Time
}

// MemoryStore is the single-process Store used when no Redis address is configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memEntry)}
}

func (m *MemoryStore) Claim(_ context.Context, key string) (Claim, error) {
	if key == "" {
		return Claim{}, ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		if e.done {
			return Claim{State: Completed, Response: append([]byte(nil), e.response...)}, nil
		}
		return Claim{State: InFlight}, nil
	}
	m.entries[key] = memEntry{expires: now.Add(m.ttl)}
	return Claim{State: Acquired}, nil
}

func (m *MemoryStore) Complete(_ context.Context, key string, response []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{
		done:     true,
		response: append([]byte(nil), response...),
		expires:  m.now().Add(m.ttl),
	}
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
