package cache

import (
	"testing"
	"time"

	"github.com/quipubase/quipubase/internal/schema"
)

func TestCache_GetSet(t *testing.T) {
	c := New(10, time.Hour)

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Error("Expected to find key1")
	}
	if val != "value1" {
		t.Errorf("Expected value1, got %v", val)
	}

	_, ok = c.Get("nonexistent")
	if ok {
		t.Error("Expected not to find nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := New(10, 50*time.Millisecond)

	c.Set("key1", "value1")

	_, ok := c.Get("key1")
	if !ok {
		t.Error("Expected to find key1 immediately")
	}

	time.Sleep(100 * time.Millisecond)

	_, ok = c.Get("key1")
	if ok {
		t.Error("Expected key1 to be expired")
	}
}

func TestCache_NoTTL(t *testing.T) {
	c := New(10, 0)

	c.Set("key1", "value1")
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("key1"); !ok {
		t.Error("Expected entries without TTL to persist")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")

	// Access key1 to make it recently used
	c.Get("key1")

	// Add another item, should evict key2 (oldest not accessed)
	c.Set("key4", "value4")

	if c.Size() != 3 {
		t.Errorf("Expected size 3, got %d", c.Size())
	}

	if _, ok := c.Get("key1"); !ok {
		t.Error("Expected key1 to still exist")
	}
	if _, ok := c.Get("key4"); !ok {
		t.Error("Expected key4 to exist")
	}
	if _, ok := c.Get("key2"); ok {
		t.Error("Expected key2 to be evicted")
	}
}

func TestCache_Delete(t *testing.T) {
	c := New(10, time.Hour)

	c.Set("key1", "value1")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to be deleted")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(10, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Clear()

	if c.Size() != 0 {
		t.Errorf("Expected empty cache, got size %d", c.Size())
	}
}

func TestCache_UpdateExisting(t *testing.T) {
	c := New(10, time.Hour)

	c.Set("key1", "value1")
	c.Set("key1", "value2")

	val, ok := c.Get("key1")
	if !ok {
		t.Error("Expected to find key1")
	}
	if val != "value2" {
		t.Errorf("Expected value2, got %v", val)
	}

	if c.Size() != 1 {
		t.Errorf("Expected size 1, got %d", c.Size())
	}
}

func TestCache_ZeroCapacity(t *testing.T) {
	// Zero capacity means unlimited
	c := New(0, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")

	if c.Size() != 2 {
		t.Errorf("Expected size 2, got %d", c.Size())
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := New(100, time.Hour)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 100; j++ {
				key := string(rune('a'+n)) + string(rune('0'+j%10))
				c.Set(key, j)
				c.Get(key)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if c.Size() > 100 {
		t.Errorf("Expected size <= 100, got %d", c.Size())
	}
}

func TestModelCache(t *testing.T) {
	c := NewModelCache(10, time.Hour)

	compiled, err := schema.Compile([]byte(`{"type": "object", "properties": {"name": {"type": "string"}}}`))
	if err != nil {
		t.Fatalf("Failed to compile schema: %v", err)
	}

	c.Set("col-1", compiled)

	got, ok := c.Get("col-1")
	if !ok {
		t.Fatal("Expected to find cached model")
	}
	if got.SHA() != compiled.SHA() {
		t.Error("Expected cached model to match")
	}

	if _, ok := c.Get("col-2"); ok {
		t.Error("Expected not to find uncached collection")
	}

	c.Invalidate("col-1")
	if _, ok := c.Get("col-1"); ok {
		t.Error("Expected invalidated model to be gone")
	}
}
