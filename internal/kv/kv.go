// Package kv provides the ordered key-value engine interface and key layout
// shared by all storage backends.
package kv

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrStorage     = errors.New("storage failure")

	// ErrStopIteration ends a Scan early without surfacing an error.
	ErrStopIteration = errors.New("stop iteration")
)

// ScanFunc is invoked once per key/value pair during a Scan, in ascending
// key order. The value slice is only valid for the duration of the call;
// implementations that retain it must copy. Returning ErrStopIteration
// terminates the scan cleanly; any other error aborts it.
type ScanFunc func(key, value []byte) error

// Store is an ordered bytes-to-bytes map. Single-key writes are atomic and
// crash-safe where the engine supports it; no cross-key atomicity is
// provided. Scans observe a stable snapshot taken at iteration start.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan calls fn for every key with the given prefix, ascending.
	Scan(ctx context.Context, prefix []byte, fn ScanFunc) error

	// DropPrefix removes every key with the given prefix.
	DropPrefix(ctx context.Context, prefix []byte) error

	// Close releases the backend. The store is unusable afterwards.
	Close() error

	// IsHealthy returns true if the backend is reachable.
	IsHealthy(ctx context.Context) bool
}
