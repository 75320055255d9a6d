package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUStore is an in-process Store bounded by entry count and age. It is safe
// for concurrent use.
type LRUStore struct {
	lru *expirable.LRU[string, []byte]
}

func NewLRUStore(size int, ttl time.Duration) *LRUStore {
	if size <= 0 {
		size = 1
	}
	return &LRUStore{lru: expirable.NewLRU[string, []byte](size, nil, ttlOrDefault(ttl))}
}

func (s *LRUStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	return v, ok, nil
}

func (s *LRUStore) Set(_ context.Context, key string, value []byte) error {
	s.lru.Add(key, value)
	return nil
}

func (s *LRUStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *LRUStore) Len() int { return s.lru.Len() }
