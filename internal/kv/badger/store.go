// Package badger provides the embedded Badger-backed key-value engine.
// This is the default backend: pure Go, WAL-backed, ordered iteration.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/quipubase/quipubase/internal/kv"
)

// Config holds Badger backend settings.
type Config struct {
	// Path is the data directory. Created if absent.
	Path string

	// SyncWrites fsyncs every commit. Slower, but no window of loss on
	// power failure.
	SyncWrites bool

	// Logger receives Badger's internal messages. Optional.
	Logger *slog.Logger
}

// Store implements kv.Store on a Badger database.
type Store struct {
	db *badgerdb.DB
}

// NewStore opens (or creates) the database at cfg.Path.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("badger: data path is required")
	}

	opts := badgerdb.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithLoggingLevel(badgerdb.WARNING).
		WithMetricsEnabled(false)
	if cfg.Logger != nil {
		opts = opts.WithLogger(slogAdapter{cfg.Logger})
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, kv.ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: get: %v", kv.ErrStorage, err)
	}
	return out, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("%w: put: %v", kv.ErrStorage, err)
	}
	return nil
}

// Delete removes key. Badger tombstones absent keys without complaint,
// which matches the contract.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %v", kv.ErrStorage, err)
	}
	return nil
}

// Scan visits keys with the given prefix in ascending order over a read
// snapshot (the View transaction).
func (s *Store) Scan(ctx context.Context, prefix []byte, fn kv.ScanFunc) error {
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(val []byte) error {
				return fn(key, val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, kv.ErrStopIteration) {
		return nil
	}
	return err
}

// DropPrefix removes every key with the given prefix.
func (s *Store) DropPrefix(ctx context.Context, prefix []byte) error {
	if err := s.db.DropPrefix(prefix); err != nil {
		return fmt.Errorf("%w: drop prefix: %v", kv.ErrStorage, err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsHealthy returns true if the database is open.
func (s *Store) IsHealthy(ctx context.Context) bool {
	return !s.db.IsClosed()
}

// slogAdapter bridges Badger's logger to slog. Badger's info output is
// chatty, so it lands at debug level.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...interface{}) {
	a.l.Error(fmt.Sprintf("badger: "+format, args...))
}

func (a slogAdapter) Warningf(format string, args ...interface{}) {
	a.l.Warn(fmt.Sprintf("badger: "+format, args...))
}

func (a slogAdapter) Infof(format string, args ...interface{}) {
	a.l.Debug(fmt.Sprintf("badger: "+format, args...))
}

func (a slogAdapter) Debugf(format string, args ...interface{}) {
	a.l.Debug(fmt.Sprintf("badger: "+format, args...))
}
