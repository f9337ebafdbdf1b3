package conformance

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/quipubase/quipubase/internal/kv"
)

// RunCRUDTests verifies basic get, put and delete behavior.
func RunCRUDTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.Put(ctx, []byte("meta/c1"), []byte(`{"sha":"abc"}`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := store.Get(ctx, []byte("meta/c1"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"sha":"abc"}` {
			t.Errorf("Expected stored value, got %s", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		_, err := store.Get(context.Background(), []byte("meta/absent"))
		if !errors.Is(err, kv.ErrKeyNotFound) {
			t.Errorf("Expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.Put(ctx, []byte("coll/c1/r1"), []byte("old")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := store.Put(ctx, []byte("coll/c1/r1"), []byte("new")); err != nil {
			t.Fatalf("Overwrite failed: %v", err)
		}

		got, err := store.Get(ctx, []byte("coll/c1/r1"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "new" {
			t.Errorf("Expected new, got %s", got)
		}
	})

	t.Run("DeleteExisting", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.Put(ctx, []byte("coll/c1/r1"), []byte("v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := store.Delete(ctx, []byte("coll/c1/r1")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(ctx, []byte("coll/c1/r1")); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		if err := store.Delete(context.Background(), []byte("coll/c1/absent")); err != nil {
			t.Errorf("Delete of absent key failed: %v", err)
		}
	})

	t.Run("BinaryValues", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		value := []byte{0x00, 0xFF, 0x7F, 0x00, '"', '\n'}
		if err := store.Put(ctx, []byte("coll/c1/bin"), value); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := store.Get(ctx, []byte("coll/c1/bin"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Errorf("Binary value corrupted: got %v, want %v", got, value)
		}
	})

	t.Run("IsHealthy", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		if !store.IsHealthy(context.Background()) {
			t.Error("Expected a fresh store to report healthy")
		}
	})
}
