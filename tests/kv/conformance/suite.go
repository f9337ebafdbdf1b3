// Package conformance verifies key-value backends against the behavioral
// contract the registry and document store rely on. Every backend must pass
// the same suite regardless of engine.
package conformance

import (
	"testing"

	"github.com/quipubase/quipubase/internal/kv"
)

// StoreFactory returns a fresh, empty store for a single test.
type StoreFactory func(t *testing.T) kv.Store

// RunAll runs the complete conformance suite against a backend.
func RunAll(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("CRUD", func(t *testing.T) {
		RunCRUDTests(t, newStore)
	})
	t.Run("Scan", func(t *testing.T) {
		RunScanTests(t, newStore)
	})
	t.Run("DropPrefix", func(t *testing.T) {
		RunDropPrefixTests(t, newStore)
	})
	t.Run("Concurrency", func(t *testing.T) {
		RunConcurrencyTests(t, newStore)
	})
}
