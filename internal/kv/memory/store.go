// Package memory provides an in-memory key-value engine.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/quipubase/quipubase/internal/kv"
)

// Store implements kv.Store with a mutex-guarded map. Intended for tests
// and ephemeral deployments; nothing survives a restart.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrStorage
	}
	v, ok := s.data[string(key)]
	if !ok {
		return nil, kv.ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrStorage
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[string(key)] = v
	return nil
}

// Delete removes key. Absent keys are ignored.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrStorage
	}
	delete(s.data, string(key))
	return nil
}

// Scan visits keys with the given prefix in ascending order. The key set is
// snapshotted under the read lock before fn runs, so concurrent writers do
// not perturb an in-flight scan.
func (s *Store) Scan(ctx context.Context, prefix []byte, fn kv.ScanFunc) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return kv.ErrStorage
	}
	p := string(prefix)
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		v := s.data[k]
		values[i] = make([]byte, len(v))
		copy(values[i], v)
	}
	s.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn([]byte(k), values[i]); err != nil {
			if err == kv.ErrStopIteration {
				return nil
			}
			return err
		}
	}
	return nil
}

// DropPrefix removes every key with the given prefix.
func (s *Store) DropPrefix(ctx context.Context, prefix []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrStorage
	}
	p := string(prefix)
	for k := range s.data {
		if strings.HasPrefix(k, p) {
			delete(s.data, k)
		}
	}
	return nil
}

// Close marks the store closed and releases its data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.data = nil
	return nil
}

// IsHealthy returns true if the store is open.
func (s *Store) IsHealthy(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return !s.closed
}
