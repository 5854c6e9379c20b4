package csrf

import (
	"context"
	"sync"
	"time"
)

type memoryState struct {
	createdAt time.Time
}

// MemoryStore is an in-process StateStore safe for concurrent use.
// A background loop evicts states that expired without being consumed.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]memoryState

	ttl         time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemoryStore returns a MemoryStore with the given state TTL
// (DefaultTTL if ttl <= 0) and starts its cleanup loop.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		states:      make(map[string]memoryState),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Issue generates and records a new state token.
func (s *MemoryStore) Issue(ctx context.Context) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.states[token] = memoryState{createdAt: time.Now()}
	s.mu.Unlock()
	return token, nil
}

// Consume deletes the token under the lock, so exactly one caller can succeed
// for a given token.
func (s *MemoryStore) Consume(ctx context.Context, token string) error {
	s.mu.Lock()
	st, ok := s.states[token]
	if ok {
		delete(s.states, token)
	}
	s.mu.Unlock()

	if !ok {
		return ErrCSRFMismatch
	}
	if time.Since(st.createdAt) > s.ttl {
		return ErrCSRFMismatch
	}
	return nil
}

// Stop stops the background cleanup goroutine.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, st := range s.states {
		if time.Since(st.createdAt) > s.ttl {
			delete(s.states, token)
		}
	}
}
