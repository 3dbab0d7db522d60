package session

import (
	"context"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryStoreSize = 10_000

// MemoryStore is an in-process Store bounded by an LRU. Intended for
// development and tests; sessions do not survive a restart.
type MemoryStore struct {
	cache     *lru.Cache[string, memoryEntry]
	ttl       time.Duration
	keyPrefix string
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates a memory store. A zero ttl keeps entries until they
// are deleted or evicted.
func NewMemoryStore(ttl time.Duration, keyPrefix string) (*MemoryStore, error) {
	c, err := lru.New[string, memoryEntry](defaultMemoryStoreSize)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c, ttl: ttl, keyPrefix: keyPrefix}, nil
}

func (s *MemoryStore) Load(_ context.Context, id string) ([]byte, error) {
	key := s.keyPrefix + id
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil, ErrNotFound
	}
	return slices.Clone(entry.value), nil
}

func (s *MemoryStore) Save(_ context.Context, id string, value []byte) error {
	entry := memoryEntry{value: slices.Clone(value)}
	if s.ttl > 0 {
		entry.expiresAt = time.Now().Add(s.ttl)
	}
	s.cache.Add(s.keyPrefix+id, entry)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Remove(s.keyPrefix + id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
