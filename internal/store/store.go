// Package store implements per-collection record storage: validated CRUD,
// equality-filtered queries, and one published event per mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quipubase/quipubase/internal/kv"
	"github.com/quipubase/quipubase/internal/metrics"
	"github.com/quipubase/quipubase/internal/pubsub"
	"github.com/quipubase/quipubase/internal/schema"
)

var (
	// ErrRecordNotFound is returned when a record ID resolves to nothing.
	ErrRecordNotFound = errors.New("record not found")
	// ErrValidation wraps schema validation failures on writes.
	ErrValidation = errors.New("validation failed")
)

// DefaultLimit caps query results when the request does not set a limit.
const DefaultLimit = 100

// Store persists records beneath their collection's key prefix and publishes
// a mutation event after every successful write. Safe for concurrent use;
// concurrent updates to one record are last-writer-wins.
type Store struct {
	kv      kv.Store
	bus     *pubsub.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a record store. logger and m may be nil.
func New(kvStore kv.Store, bus *pubsub.Bus, logger *slog.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:      kvStore,
		bus:     bus,
		logger:  logger,
		metrics: m,
	}
}

// Create validates and writes a new record, assigning a UUIDv7 id when the
// document does not carry one. UUIDv7 ids are time-ordered, so key order is
// insertion order for assigned ids. Publishes a created event.
func (s *Store) Create(ctx context.Context, collectionID string, model *schema.Compiled, doc map[string]interface{}) (map[string]interface{}, error) {
	if err := model.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	record := make(map[string]interface{}, len(doc)+1)
	for k, v := range doc {
		record[k] = v
	}
	recordID, _ := record["id"].(string)
	if recordID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("assign record id: %w", err)
		}
		recordID = id.String()
		record["id"] = recordID
	}

	if err := s.kv.Put(ctx, kv.RecordKey(collectionID, recordID), model.Serialize(record)); err != nil {
		return nil, err
	}

	s.publish(collectionID, pubsub.KindCreated, recordID, record, "create")
	return record, nil
}

// Retrieve fetches a record by ID.
func (s *Store) Retrieve(ctx context.Context, collectionID string, model *schema.Compiled, recordID string) (map[string]interface{}, error) {
	value, err := s.kv.Get(ctx, kv.RecordKey(collectionID, recordID))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
		}
		return nil, err
	}
	return model.Deserialize(value)
}

// Update applies a patch to an existing record. The patch replaces the
// enumerated top-level fields, never the id; the merged document is
// re-validated before the write. Publishes an updated event with the
// post-image.
func (s *Store) Update(ctx context.Context, collectionID string, model *schema.Compiled, recordID string, patch map[string]interface{}) (map[string]interface{}, error) {
	current, err := s.Retrieve(ctx, collectionID, model, recordID)
	if err != nil {
		return nil, err
	}

	record := model.ApplyPatch(current, patch)
	if err := model.Validate(record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.kv.Put(ctx, kv.RecordKey(collectionID, recordID), model.Serialize(record)); err != nil {
		return nil, err
	}

	s.publish(collectionID, pubsub.KindUpdated, recordID, record, "update")
	return record, nil
}

// Delete removes a record and returns its pre-image. Publishes a deleted
// event carrying the pre-image.
func (s *Store) Delete(ctx context.Context, collectionID string, model *schema.Compiled, recordID string) (map[string]interface{}, error) {
	record, err := s.Retrieve(ctx, collectionID, model, recordID)
	if err != nil {
		return nil, err
	}

	if err := s.kv.Delete(ctx, kv.RecordKey(collectionID, recordID)); err != nil {
		return nil, err
	}

	s.publish(collectionID, pubsub.KindDeleted, recordID, record, "delete")
	return record, nil
}

// Find scans the collection in ascending key order and returns records
// matching the equality filter. offset skips matching records, not raw keys;
// a nil filter matches everything. A non-positive limit falls back to
// DefaultLimit.
func (s *Store) Find(ctx context.Context, collectionID string, model *schema.Compiled, filter map[string]interface{}, limit, offset int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	results := make([]map[string]interface{}, 0)
	skipped := 0
	err := s.kv.Scan(ctx, kv.CollectionPrefix(collectionID), func(key, value []byte) error {
		record, err := model.Deserialize(value)
		if err != nil {
			return err
		}
		if len(filter) > 0 && !model.Match(record, filter) {
			return nil
		}
		if skipped < offset {
			skipped++
			return nil
		}
		results = append(results, record)
		if len(results) >= limit {
			return kv.ErrStopIteration
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) publish(collectionID string, kind pubsub.Kind, recordID string, payload map[string]interface{}, op string) {
	if s.bus != nil {
		s.bus.Publish(collectionID, kind, recordID, payload)
	}
	if s.metrics != nil {
		s.metrics.RecordMutation(op)
	}
	s.logger.Debug("record mutated", "collection", collectionID, "record", recordID, "op", op)
}
