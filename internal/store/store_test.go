package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quipubase/quipubase/internal/kv"
	"github.com/quipubase/quipubase/internal/kv/memory"
	"github.com/quipubase/quipubase/internal/pubsub"
	"github.com/quipubase/quipubase/internal/schema"
)

const taskSchema = `{
	"title": "Task",
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"done": {"type": "boolean"}
	},
	"required": ["name"]
}`

func newTestStore(t *testing.T) (*Store, kv.Store, *pubsub.Bus) {
	t.Helper()
	kvStore := memory.NewStore()
	t.Cleanup(func() { kvStore.Close() })
	bus := pubsub.New(16, nil, nil)
	return New(kvStore, bus, nil, nil), kvStore, bus
}

func mustModel(t *testing.T) *schema.Compiled {
	t.Helper()
	model, err := schema.Compile([]byte(taskSchema))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return model
}

func waitEvent(t *testing.T, sub *pubsub.Subscription) pubsub.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("Subscription closed while waiting for event")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
		return pubsub.Event{}
	}
}

func TestStore_CreateAssignsID(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)

	record, err := s.Create(context.Background(), "col-1", model, map[string]interface{}{"name": "write docs"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	id, _ := record["id"].(string)
	if id == "" {
		t.Fatal("Expected assigned record id")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("Assigned id is not a UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Errorf("Expected UUIDv7, got version %d", parsed.Version())
	}
}

func TestStore_CreateHonorsClientID(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	record, err := s.Create(ctx, "col-1", model, map[string]interface{}{"id": "custom-1", "name": "write docs"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if record["id"] != "custom-1" {
		t.Errorf("Expected client id custom-1, got %v", record["id"])
	}

	got, err := s.Retrieve(ctx, "col-1", model, "custom-1")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got["name"] != "write docs" {
		t.Errorf("Expected name to round-trip, got %v", got["name"])
	}
}

func TestStore_CreateValidationError(t *testing.T) {
	s, _, bus := newTestStore(t)
	model := mustModel(t)
	sub := bus.Subscribe("col-1")
	defer sub.Close()

	_, err := s.Create(context.Background(), "col-1", model, map[string]interface{}{"done": true})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}

	// A failed mutation must not publish.
	select {
	case ev := <-sub.Events():
		t.Errorf("Expected no event after failed create, got %s", ev.Kind)
	default:
	}
}

func TestStore_CreatePublishesEvent(t *testing.T) {
	s, _, bus := newTestStore(t)
	model := mustModel(t)
	sub := bus.Subscribe("col-1")
	defer sub.Close()

	record, err := s.Create(context.Background(), "col-1", model, map[string]interface{}{"name": "write docs"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ev := waitEvent(t, sub)
	if ev.Kind != pubsub.KindCreated {
		t.Errorf("Expected created event, got %s", ev.Kind)
	}
	if ev.RecordID != record["id"] {
		t.Errorf("Expected record id %v, got %s", record["id"], ev.RecordID)
	}
	if ev.Payload["name"] != "write docs" {
		t.Errorf("Expected post-image payload, got %v", ev.Payload)
	}
	if ev.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", ev.Seq)
	}
}

func TestStore_RetrieveMissing(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)

	_, err := s.Retrieve(context.Background(), "col-1", model, "missing")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestStore_Update(t *testing.T) {
	s, _, bus := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "col-1", model, map[string]interface{}{"name": "write docs", "done": false})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	recordID := created["id"].(string)

	sub := bus.Subscribe("col-1")
	defer sub.Close()

	updated, err := s.Update(ctx, "col-1", model, recordID, map[string]interface{}{"done": true})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated["done"] != true {
		t.Errorf("Expected done=true, got %v", updated["done"])
	}
	if updated["name"] != "write docs" {
		t.Errorf("Expected unpatched fields preserved, got %v", updated["name"])
	}
	if updated["id"] != recordID {
		t.Errorf("Expected id unchanged, got %v", updated["id"])
	}

	got, err := s.Retrieve(ctx, "col-1", model, recordID)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got["done"] != true {
		t.Errorf("Expected persisted done=true, got %v", got["done"])
	}

	ev := waitEvent(t, sub)
	if ev.Kind != pubsub.KindUpdated {
		t.Errorf("Expected updated event, got %s", ev.Kind)
	}
	if ev.Payload["done"] != true {
		t.Errorf("Expected post-image payload, got %v", ev.Payload)
	}
}

func TestStore_UpdateRejectsUnknownField(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "col-1", model, map[string]interface{}{"name": "write docs"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = s.Update(ctx, "col-1", model, created["id"].(string), map[string]interface{}{"bogus": 1})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for unknown patch field, got %v", err)
	}
}

func TestStore_UpdateCannotChangeID(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "col-1", model, map[string]interface{}{"id": "stable", "name": "write docs"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := s.Update(ctx, "col-1", model, "stable", map[string]interface{}{"id": "hijacked", "done": true})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated["id"] != "stable" {
		t.Errorf("Expected id unchanged, got %v", updated["id"])
	}
	if _, err := s.Retrieve(ctx, "col-1", model, "hijacked"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected no record under patched id, got %v", err)
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)

	_, err := s.Update(context.Background(), "col-1", model, "missing", map[string]interface{}{"done": true})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s, _, bus := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "col-1", model, map[string]interface{}{"name": "write docs"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	recordID := created["id"].(string)

	sub := bus.Subscribe("col-1")
	defer sub.Close()

	preImage, err := s.Delete(ctx, "col-1", model, recordID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if preImage["name"] != "write docs" {
		t.Errorf("Expected pre-image returned, got %v", preImage)
	}

	if _, err := s.Retrieve(ctx, "col-1", model, recordID); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound after delete, got %v", err)
	}

	ev := waitEvent(t, sub)
	if ev.Kind != pubsub.KindDeleted {
		t.Errorf("Expected deleted event, got %s", ev.Kind)
	}
	if ev.Payload["name"] != "write docs" {
		t.Errorf("Expected pre-image payload, got %v", ev.Payload)
	}
}

func TestStore_DeleteMissing(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)

	_, err := s.Delete(context.Background(), "col-1", model, "missing")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestStore_Find(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	docs := []map[string]interface{}{
		{"id": "r1", "name": "a", "done": true},
		{"id": "r2", "name": "b", "done": false},
		{"id": "r3", "name": "c", "done": true},
		{"id": "r4", "name": "d", "done": false},
		{"id": "r5", "name": "e", "done": true},
	}
	for _, doc := range docs {
		if _, err := s.Create(ctx, "col-1", model, doc); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	all, err := s.Find(ctx, "col-1", model, nil, 0, 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Expected 5 records, got %d", len(all))
	}
	for i, want := range []string{"r1", "r2", "r3", "r4", "r5"} {
		if all[i]["id"] != want {
			t.Errorf("Expected %s at position %d, got %v", want, i, all[i]["id"])
		}
	}

	done, err := s.Find(ctx, "col-1", model, map[string]interface{}{"done": true}, 0, 0)
	if err != nil {
		t.Fatalf("Find with filter failed: %v", err)
	}
	if len(done) != 3 {
		t.Fatalf("Expected 3 matching records, got %d", len(done))
	}
	for i, want := range []string{"r1", "r3", "r5"} {
		if done[i]["id"] != want {
			t.Errorf("Expected match %s at position %d, got %v", want, i, done[i]["id"])
		}
	}
}

func TestStore_FindOffsetCountsMatches(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	// Interleave matching and non-matching records; offset must skip
	// matches, not raw keys.
	docs := []map[string]interface{}{
		{"id": "r1", "name": "a", "done": true},
		{"id": "r2", "name": "b", "done": false},
		{"id": "r3", "name": "c", "done": true},
		{"id": "r4", "name": "d", "done": false},
		{"id": "r5", "name": "e", "done": true},
		{"id": "r6", "name": "f", "done": true},
	}
	for _, doc := range docs {
		if _, err := s.Create(ctx, "col-1", model, doc); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	page, err := s.Find(ctx, "col-1", model, map[string]interface{}{"done": true}, 2, 1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(page))
	}
	if page[0]["id"] != "r3" || page[1]["id"] != "r5" {
		t.Errorf("Expected page [r3 r5], got [%v %v]", page[0]["id"], page[1]["id"])
	}
}

func TestStore_FindLimit(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		if _, err := s.Create(ctx, "col-1", model, map[string]interface{}{"id": id, "name": id}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	page, err := s.Find(ctx, "col-1", model, nil, 2, 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(page))
	}
	if page[0]["id"] != "r1" || page[1]["id"] != "r2" {
		t.Errorf("Expected first page [r1 r2], got [%v %v]", page[0]["id"], page[1]["id"])
	}
}

func TestStore_FindAssignedIDsKeepInsertionOrder(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	names := []string{"first", "second", "third", "fourth"}
	for _, name := range names {
		if _, err := s.Create(ctx, "col-1", model, map[string]interface{}{"name": name}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	all, err := s.Find(ctx, "col-1", model, nil, 0, 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(all) != len(names) {
		t.Fatalf("Expected %d records, got %d", len(names), len(all))
	}
	for i, name := range names {
		if all[i]["name"] != name {
			t.Errorf("Expected %s at position %d, got %v", name, i, all[i]["name"])
		}
	}
}

func TestStore_FindIsolatedPerCollection(t *testing.T) {
	s, _, _ := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "col-1", model, map[string]interface{}{"id": "r1", "name": "a"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create(ctx, "col-2", model, map[string]interface{}{"id": "r2", "name": "b"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	records, err := s.Find(ctx, "col-1", model, nil, 0, 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(records) != 1 || records[0]["id"] != "r1" {
		t.Errorf("Expected only col-1 records, got %v", records)
	}
}

func TestStore_EventSequenceIsMonotonic(t *testing.T) {
	s, _, bus := newTestStore(t)
	model := mustModel(t)
	ctx := context.Background()

	sub := bus.Subscribe("col-1")
	defer sub.Close()

	created, err := s.Create(ctx, "col-1", model, map[string]interface{}{"name": "a"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Update(ctx, "col-1", model, created["id"].(string), map[string]interface{}{"done": true}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := s.Delete(ctx, "col-1", model, created["id"].(string)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	wantKinds := []pubsub.Kind{pubsub.KindCreated, pubsub.KindUpdated, pubsub.KindDeleted}
	for i, want := range wantKinds {
		ev := waitEvent(t, sub)
		if ev.Kind != want {
			t.Errorf("Expected %s at position %d, got %s", want, i, ev.Kind)
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("Expected seq %d, got %d", i+1, ev.Seq)
		}
	}
}
