package store

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time // zero means no TTL
}

func (it memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// MemoryStore is an in-process KV used for tests and single-node dev setups.
// It honors TTLs lazily: expired entries are dropped when touched or when
// Keys enumerates them.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	sets   map[string]map[string]struct{}
	setTTL map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:  make(map[string]memoryItem),
		sets:   make(map[string]map[string]struct{}),
		setTTL: make(map[string]time.Time),
	}
}

func (s *MemoryStore) getLocked(key string, now time.Time) (memoryItem, bool) {
	it, ok := s.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if it.expired(now) {
		delete(s.items, key)
		return memoryItem{}, false
	}
	return it, true
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.getLocked(key, time.Now())
	if !ok {
		return "", ErrKeyNotFound
	}
	return it.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := memoryItem{value: value}
	if ttl > 0 {
		it.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = it
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.getLocked(key, time.Now()); ok {
		return false, nil
	}
	it := memoryItem{value: value}
	if ttl > 0 {
		it.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = it
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.items, key)
		delete(s.sets, key)
		delete(s.setTTL, key)
	}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	it, ok := s.getLocked(key, now)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(it.value, 10, 64)
		if err != nil {
			parsed = 0
		}
		n = parsed
	}
	n++
	it.value = strconv.FormatInt(n, 10)
	s.items[key] = it
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if it, ok := s.getLocked(key, now); ok {
		it.expiresAt = now.Add(ttl)
		s.items[key] = it
		return nil
	}
	if _, ok := s.sets[key]; ok {
		s.setTTL[key] = now.Add(ttl)
	}
	return nil
}

func (s *MemoryStore) setLocked(key string, now time.Time) (map[string]struct{}, bool) {
	members, ok := s.sets[key]
	if !ok {
		return nil, false
	}
	if exp, hasTTL := s.setTTL[key]; hasTTL && now.After(exp) {
		delete(s.sets, key)
		delete(s.setTTL, key)
		return nil, false
	}
	return members, true
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.setLocked(key, time.Now())
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.setLocked(key, time.Now())
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(s.sets, key)
		delete(s.setTTL, key)
	}
	return nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.setLocked(key, time.Now())
	if !ok {
		return []string{}, nil
	}
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	return members, nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0)
	for key, it := range s.items {
		if it.expired(now) {
			delete(s.items, key)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	for key := range s.sets {
		if _, ok := s.setLocked(key, now); !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}
