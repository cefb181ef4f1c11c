// Package cache stores finished solve results by cache key.
package cache

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/piwi3910/SheetNest/internal/model"
)

// DefaultSize is the number of results a Memory cache holds by default.
const DefaultSize = 128

// ErrCorrupt is returned by Get when a stored entry cannot be decoded.
var ErrCorrupt = errors.New("corrupt cache entry")

// Cache maps cache keys to results. Entries are never overwritten: the first
// result stored under a key wins, and only Delete makes room for another.
// Implementations are safe for concurrent use and never expose a partially
// written entry.
type Cache interface {
	Get(key string) (model.Result, bool, error)
	PutIfAbsent(key string, result model.Result) (bool, error)
	Delete(key string) error
}

// Memory is a bounded in-process cache with least-recently-used eviction.
type Memory struct {
	lru *lru.Cache
}

// NewMemory creates a Memory cache holding up to size results.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &Memory{lru: c}, nil
}

// Get returns a copy of the result stored under key.
func (m *Memory) Get(key string) (model.Result, bool, error) {
	v, ok := m.lru.Get(key)
	if !ok {
		return model.Result{}, false, nil
	}
	return v.(model.Result).Clone(), true, nil
}

// PutIfAbsent stores a copy of result unless key is already present and
// reports whether it was stored.
func (m *Memory) PutIfAbsent(key string, result model.Result) (bool, error) {
	ok, _ := m.lru.ContainsOrAdd(key, result.Clone())
	return !ok, nil
}

// Delete drops the result stored under key, if any.
func (m *Memory) Delete(key string) error {
	m.lru.Remove(key)
	return nil
}

// Len returns the number of cached results.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Purge drops every cached result.
func (m *Memory) Purge() {
	m.lru.Purge()
}
