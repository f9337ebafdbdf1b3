package conformance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/quipubase/quipubase/internal/kv"
)

// RunScanTests verifies ordered prefix iteration.
func RunScanTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("AscendingOrder", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		// Inserted out of order on purpose.
		for _, k := range []string{"coll/c1/r3", "coll/c1/r1", "coll/c1/r2"} {
			if err := store.Put(ctx, []byte(k), []byte("v")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}

		var keys []string
		err := store.Scan(ctx, []byte("coll/c1/"), func(key, value []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}

		want := []string{"coll/c1/r1", "coll/c1/r2", "coll/c1/r3"}
		if len(keys) != len(want) {
			t.Fatalf("Expected %d keys, got %d: %v", len(want), len(keys), keys)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
			}
		}
	})

	t.Run("PrefixIsolation", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		store.Put(ctx, []byte("coll/c1/r1"), []byte("v"))
		store.Put(ctx, []byte("coll/c10/r1"), []byte("other"))
		store.Put(ctx, []byte("meta/c1"), []byte("meta"))

		count := 0
		err := store.Scan(ctx, []byte("coll/c1/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 key under coll/c1/, got %d", count)
		}
	})

	t.Run("EmptyPrefix", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		count := 0
		err := store.Scan(context.Background(), []byte("coll/none/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("Scan of empty prefix failed: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected no visits, got %d", count)
		}
	})

	t.Run("EarlyStop", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		for i := 0; i < 10; i++ {
			store.Put(ctx, []byte(fmt.Sprintf("coll/c1/r%02d", i)), []byte("v"))
		}

		count := 0
		err := store.Scan(ctx, []byte("coll/c1/"), func(key, value []byte) error {
			count++
			if count == 3 {
				return kv.ErrStopIteration
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3 visits before stop, got %d", count)
		}
	})

	t.Run("CallbackError", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		store.Put(ctx, []byte("coll/c1/r1"), []byte("v"))

		boom := errors.New("callback boom")
		err := store.Scan(ctx, []byte("coll/c1/"), func(key, value []byte) error {
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected callback error to propagate, got %v", err)
		}
	})

	t.Run("ValuesMatchKeys", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			key := fmt.Sprintf("coll/c1/r%d", i)
			store.Put(ctx, []byte(key), []byte(fmt.Sprintf("value-%d", i)))
		}

		err := store.Scan(ctx, []byte("coll/c1/"), func(key, value []byte) error {
			want := "value-" + string(key[len(key)-1])
			if string(value) != want {
				t.Errorf("Value for %s = %s, want %s", key, value, want)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
	})
}
