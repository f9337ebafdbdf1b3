package conformance

import (
	"testing"

	"github.com/quipubase/quipubase/internal/kv"
	"github.com/quipubase/quipubase/internal/kv/badger"
	"github.com/quipubase/quipubase/internal/kv/memory"
)

// TestMemoryBackend runs the conformance suite against the in-memory store.
func TestMemoryBackend(t *testing.T) {
	RunAll(t, func(t *testing.T) kv.Store {
		return memory.NewStore()
	})
}

// TestBadgerBackend runs the conformance suite against Badger on a
// throwaway directory.
func TestBadgerBackend(t *testing.T) {
	RunAll(t, func(t *testing.T) kv.Store {
		store, err := badger.NewStore(badger.Config{Path: t.TempDir()})
		if err != nil {
			t.Fatalf("Failed to open badger store: %v", err)
		}
		return store
	})
}
