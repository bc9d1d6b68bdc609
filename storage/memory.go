package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
)

// InMemoryStorage is a volatile core.Storage storing documents in a process
// local map. It is safe for concurrent access and best suited for tests or
// single-process hosts. Documents are cloned on the way in and out.
type InMemoryStorage struct {
	mu    sync.RWMutex
	items map[string]core.StoreItem
	seq   uint64
}

// NewInMemoryStorage constructs an empty store.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{items: make(map[string]core.StoreItem)}
}

// Read returns clones of the existing documents among keys.
func (s *InMemoryStorage) Read(ctx context.Context, keys []string) (map[string]core.StoreItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]core.StoreItem, len(keys))
	for _, k := range keys {
		if item, ok := s.items[k]; ok {
			out[k] = core.StoreItem{Value: item.Value.Clone(), ETag: item.ETag}
		}
	}
	return out, nil
}

// Write stores all changes or none. Each written document gets a new ETag.
func (s *InMemoryStorage) Write(ctx context.Context, changes map[string]core.StoreItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, change := range changes {
		if err := CheckETag(k, change.ETag, s.items[k].ETag, s.has(k)); err != nil {
			return err
		}
	}
	for k, change := range changes {
		s.seq++
		s.items[k] = core.StoreItem{Value: change.Value.Clone(), ETag: strconv.FormatUint(s.seq, 10)}
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (s *InMemoryStorage) Delete(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// Len returns the number of stored documents.
func (s *InMemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// has reports whether key exists; caller must hold the lock.
func (s *InMemoryStorage) has(key string) bool {
	_, ok := s.items[key]
	return ok
}

// CheckETag applies the optimistic concurrency rule shared by all backends.
// want is the ETag on the incoming change, current the stored one.
func CheckETag(key, want, current string, exists bool) error {
	switch {
	case want == "":
		return nil
	case want == "*":
		if exists {
			return fmt.Errorf("%w: %q already exists", core.ErrETagMismatch, key)
		}
	case !exists || want != current:
		return fmt.Errorf("%w: %q", core.ErrETagMismatch, key)
	}
	return nil
}

var _ core.Storage = (*InMemoryStorage)(nil)
