// Package registry provides the collection catalog: schema registration,
// lookup and teardown.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quipubase/quipubase/internal/cache"
	"github.com/quipubase/quipubase/internal/kv"
	"github.com/quipubase/quipubase/internal/metrics"
	"github.com/quipubase/quipubase/internal/pubsub"
	"github.com/quipubase/quipubase/internal/schema"
)

// ErrCollectionNotFound is returned when a collection ID resolves to nothing.
// Handlers check it with errors.Is() instead of string matching.
var ErrCollectionNotFound = errors.New("collection not found")

// Collection describes one registered collection.
type Collection struct {
	ID        string          `json:"id"`
	SHA       string          `json:"sha"`
	Schema    json.RawMessage `json:"schema"`
	CreatedAt time.Time       `json:"created_at"`
}

// Summary is the collection listing shape.
type Summary struct {
	ID  string `json:"id"`
	SHA string `json:"sha"`
}

// metaRecord is the persisted value under meta/<collection_id>.
type metaRecord struct {
	SHA       string          `json:"sha"`
	Schema    json.RawMessage `json:"schema_json"`
	CreatedAt time.Time       `json:"created_at"`
}

// Registry is the collection catalog service.
type Registry struct {
	store   kv.Store
	models  *cache.ModelCache
	bus     *pubsub.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics

	// createMu serializes registration so the hash scan and the insert
	// are atomic. Without it two concurrent registrations of the same
	// schema could both miss the scan and mint duplicate collections.
	createMu sync.Mutex
}

// New creates a Registry. logger and m may be nil.
func New(store kv.Store, models *cache.ModelCache, bus *pubsub.Bus, logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:   store,
		models:  models,
		bus:     bus,
		logger:  logger,
		metrics: m,
	}
}

// CreateCollection registers a schema and returns its collection.
// Registration is idempotent on the canonical schema hash: re-registering a
// structurally identical schema returns the existing collection.
func (r *Registry) CreateCollection(ctx context.Context, schemaJSON []byte) (*Collection, error) {
	compiled, err := schema.Compile(schemaJSON)
	if err != nil {
		return nil, err
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	// Resolve idempotency by scanning collection metadata. Collections
	// number in the dozens, not millions; a scan avoids a second index.
	existing, err := r.findBySHA(ctx, compiled.SHA())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		r.models.Set(existing.ID, compiled)
		return existing, nil
	}

	col := &Collection{
		ID:        uuid.NewString(),
		SHA:       compiled.SHA(),
		Schema:    compiled.Schema(),
		CreatedAt: time.Now().UTC(),
	}

	value, err := json.Marshal(metaRecord{
		SHA:       col.SHA,
		Schema:    col.Schema,
		CreatedAt: col.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode collection metadata: %w", err)
	}
	if err := r.store.Put(ctx, kv.MetaKey(col.ID), value); err != nil {
		return nil, err
	}

	r.models.Set(col.ID, compiled)
	if r.metrics != nil {
		r.metrics.RecordCollectionCreated()
	}
	r.logger.Info("collection created", "collection", col.ID, "sha", col.SHA)
	return col, nil
}

// GetCollection fetches a collection by ID.
func (r *Registry) GetCollection(ctx context.Context, id string) (*Collection, error) {
	value, err := r.store.Get(ctx, kv.MetaKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
		}
		return nil, err
	}

	var meta metaRecord
	if err := json.Unmarshal(value, &meta); err != nil {
		return nil, fmt.Errorf("decode collection metadata %s: %w", id, err)
	}
	return &Collection{
		ID:        id,
		SHA:       meta.SHA,
		Schema:    meta.Schema,
		CreatedAt: meta.CreatedAt,
	}, nil
}

// ListCollections returns all collections in ascending ID order.
func (r *Registry) ListCollections(ctx context.Context) ([]Summary, error) {
	summaries := make([]Summary, 0)
	err := r.store.Scan(ctx, kv.MetaPrefix(), func(key, value []byte) error {
		id, ok := kv.SplitMetaKey(key)
		if !ok {
			return nil
		}
		var meta metaRecord
		if err := json.Unmarshal(value, &meta); err != nil {
			return fmt.Errorf("decode collection metadata %s: %w", id, err)
		}
		summaries = append(summaries, Summary{ID: id, SHA: meta.SHA})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// DeleteCollection removes a collection, its records, its live streams and
// its cached model. Returns false when the collection does not exist.
func (r *Registry) DeleteCollection(ctx context.Context, id string) (bool, error) {
	if _, err := r.store.Get(ctx, kv.MetaKey(id)); err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := r.store.Delete(ctx, kv.MetaKey(id)); err != nil {
		return false, err
	}
	if err := r.store.DropPrefix(ctx, kv.CollectionPrefix(id)); err != nil {
		return false, err
	}

	if r.bus != nil {
		r.bus.CloseTopic(id)
	}
	r.models.Invalidate(id)

	if r.metrics != nil {
		r.metrics.RecordCollectionDeleted()
	}
	r.logger.Info("collection deleted", "collection", id)
	return true, nil
}

// IsHealthy reports whether the backing store is reachable.
func (r *Registry) IsHealthy(ctx context.Context) bool {
	return r.store.IsHealthy(ctx)
}

// CompiledFor returns the compiled record model for a collection, reading
// through the model cache.
func (r *Registry) CompiledFor(ctx context.Context, id string) (*schema.Compiled, error) {
	if compiled, ok := r.models.Get(id); ok {
		return compiled, nil
	}

	col, err := r.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	compiled, err := schema.Compile(col.Schema)
	if err != nil {
		return nil, fmt.Errorf("recompile stored schema %s: %w", id, err)
	}
	r.models.Set(id, compiled)
	return compiled, nil
}

// findBySHA scans collection metadata for a schema hash.
func (r *Registry) findBySHA(ctx context.Context, sha string) (*Collection, error) {
	var found *Collection
	err := r.store.Scan(ctx, kv.MetaPrefix(), func(key, value []byte) error {
		id, ok := kv.SplitMetaKey(key)
		if !ok {
			return nil
		}
		var meta metaRecord
		if err := json.Unmarshal(value, &meta); err != nil {
			return fmt.Errorf("decode collection metadata %s: %w", id, err)
		}
		if meta.SHA != sha {
			return nil
		}
		found = &Collection{
			ID:        id,
			SHA:       meta.SHA,
			Schema:    meta.Schema,
			CreatedAt: meta.CreatedAt,
		}
		return kv.ErrStopIteration
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
