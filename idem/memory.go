package idem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	locks   map[string]memoryEntry
	results map[string]memoryEntry
}

// NewMemoryStore 进程内存储，到期的键在访问时清理
func NewMemoryStore() Store {
	return &memoryStore{
		now:     time.Now,
		locks:   make(map[string]memoryEntry),
		results: make(map[string]memoryEntry),
	}
}

func (s *memoryStore) live(m map[string]memoryEntry, key string) (memoryEntry, bool) {
	e, ok := m[key]
	if ok && !s.now().Before(e.expiresAt) {
		delete(m, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (s *memoryStore) Lock(ctx context.Context, key string, ttl time.Duration) (LockToken, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.live(s.locks, key); held {
		return "", false, nil
	}
	token := LockToken(uuid.NewString())
	s.locks[key] = memoryEntry{value: []byte(token), expiresAt: s.now().Add(ttl)}
	return token, true, nil
}

func (s *memoryStore) Unlock(_ context.Context, key string, token LockToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.live(s.locks, key); ok && string(e.value) == string(token) {
		delete(s.locks, key)
	}
	return nil
}

func (s *memoryStore) SetResult(_ context.Context, key string, val []byte, ttl time.Duration, token LockToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = memoryEntry{value: append([]byte(nil), val...), expiresAt: s.now().Add(ttl)}
	if e, ok := s.live(s.locks, key); ok && string(e.value) == string(token) {
		delete(s.locks, key)
	}
	return nil
}

func (s *memoryStore) GetResult(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(s.results, key)
	if !ok {
		return nil, ErrResultNotFound
	}
	return append([]byte(nil), e.value...), nil
}
