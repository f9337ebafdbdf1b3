package conformance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/quipubase/quipubase/internal/kv"
)

// RunDropPrefixTests verifies bulk deletion by prefix, the primitive behind
// collection teardown.
func RunDropPrefixTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("RemovesAllKeys", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		for i := 0; i < 20; i++ {
			if err := store.Put(ctx, []byte(fmt.Sprintf("coll/c1/r%02d", i)), []byte("v")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}

		if err := store.DropPrefix(ctx, []byte("coll/c1/")); err != nil {
			t.Fatalf("DropPrefix failed: %v", err)
		}

		count := 0
		store.Scan(ctx, []byte("coll/c1/"), func(key, value []byte) error {
			count++
			return nil
		})
		if count != 0 {
			t.Errorf("Expected no keys after drop, found %d", count)
		}
	})

	t.Run("PreservesNeighbors", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		store.Put(ctx, []byte("coll/c1/r1"), []byte("drop"))
		store.Put(ctx, []byte("coll/c10/r1"), []byte("keep"))
		store.Put(ctx, []byte("coll/c2/r1"), []byte("keep"))
		store.Put(ctx, []byte("meta/c1"), []byte("keep"))

		if err := store.DropPrefix(ctx, []byte("coll/c1/")); err != nil {
			t.Fatalf("DropPrefix failed: %v", err)
		}

		for _, k := range []string{"coll/c10/r1", "coll/c2/r1", "meta/c1"} {
			if _, err := store.Get(ctx, []byte(k)); err != nil {
				t.Errorf("Neighbor %s lost after DropPrefix: %v", k, err)
			}
		}
		if _, err := store.Get(ctx, []byte("coll/c1/r1")); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Errorf("Expected coll/c1/r1 gone, got %v", err)
		}
	})

	t.Run("EmptyPrefix", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()

		if err := store.DropPrefix(context.Background(), []byte("coll/none/")); err != nil {
			t.Errorf("DropPrefix of empty prefix failed: %v", err)
		}
	})
}

// RunConcurrencyTests verifies that parallel writers and readers do not
// corrupt state or lose writes.
func RunConcurrencyTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("ParallelWriters", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		const writers = 8
		const perWriter = 25

		var wg sync.WaitGroup
		errCh := make(chan error, writers)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					key := []byte(fmt.Sprintf("coll/c1/w%d-r%02d", w, i))
					if err := store.Put(ctx, key, []byte("v")); err != nil {
						errCh <- err
						return
					}
				}
			}(w)
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			t.Fatalf("Concurrent Put failed: %v", err)
		}

		count := 0
		err := store.Scan(ctx, []byte("coll/c1/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if count != writers*perWriter {
			t.Errorf("Expected %d keys, got %d", writers*perWriter, count)
		}
	})

	t.Run("ReadDuringWrite", func(t *testing.T) {
		store := newStore(t)
		defer store.Close()
		ctx := context.Background()

		if err := store.Put(ctx, []byte("coll/c1/shared"), []byte("v0")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.Put(ctx, []byte("coll/c1/shared"), []byte(fmt.Sprintf("v%d", i)))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := store.Get(ctx, []byte("coll/c1/shared")); err != nil {
					t.Errorf("Get during write failed: %v", err)
					return
				}
			}
		}()
		wg.Wait()
	})
}
