package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/quipubase/quipubase/internal/kv"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "quipubase",
		Username:        "postgres",
		Password:        "",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// DSN returns the connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// Store implements kv.Store on a single PostgreSQL kv table.
type Store struct {
	db     *sql.DB
	config Config

	// Prepared statements for better performance
	stmts *preparedStatements
}

// preparedStatements holds all prepared SQL statements.
type preparedStatements struct {
	get        *sql.Stmt
	put        *sql.Stmt
	del        *sql.Stmt
	scanRange  *sql.Stmt
	scanFrom   *sql.Stmt
	purgeRange *sql.Stmt
	purgeFrom  *sql.Stmt
}

// NewStore creates a new PostgreSQL store.
func NewStore(config Config) (*Store, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:     db,
		config: config,
	}

	// Run migrations
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Prepare statements
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

// migrate applies the schema migrations in order.
func (s *Store) migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// prepareStatements prepares all SQL statements for better performance.
func (s *Store) prepareStatements() error {
	var err error
	stmts := &preparedStatements{}

	stmts.get, err = s.db.Prepare(`SELECT v FROM kv WHERE k = $1`)
	if err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}

	stmts.put, err = s.db.Prepare(
		`INSERT INTO kv (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`)
	if err != nil {
		return fmt.Errorf("prepare put: %w", err)
	}

	stmts.del, err = s.db.Prepare(`DELETE FROM kv WHERE k = $1`)
	if err != nil {
		return fmt.Errorf("prepare del: %w", err)
	}

	stmts.scanRange, err = s.db.Prepare(
		`SELECT k, v FROM kv WHERE k >= $1 AND k < $2 ORDER BY k ASC`)
	if err != nil {
		return fmt.Errorf("prepare scanRange: %w", err)
	}

	stmts.scanFrom, err = s.db.Prepare(
		`SELECT k, v FROM kv WHERE k >= $1 ORDER BY k ASC`)
	if err != nil {
		return fmt.Errorf("prepare scanFrom: %w", err)
	}

	stmts.purgeRange, err = s.db.Prepare(`DELETE FROM kv WHERE k >= $1 AND k < $2`)
	if err != nil {
		return fmt.Errorf("prepare purgeRange: %w", err)
	}

	stmts.purgeFrom, err = s.db.Prepare(`DELETE FROM kv WHERE k >= $1`)
	if err != nil {
		return fmt.Errorf("prepare purgeFrom: %w", err)
	}

	s.stmts = stmts
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var v []byte
	err := s.stmts.get.QueryRowContext(ctx, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kv.ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: get: %v", kv.ErrStorage, err)
	}
	return v, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	if _, err := s.stmts.put.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("%w: put: %v", kv.ErrStorage, err)
	}
	return nil
}

// Delete removes key. Absent keys are ignored.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	if _, err := s.stmts.del.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("%w: delete: %v", kv.ErrStorage, err)
	}
	return nil
}

// Scan visits keys with the given prefix in ascending byte order. BYTEA
// comparison is unsigned lexicographic, matching the engine contract.
func (s *Store) Scan(ctx context.Context, prefix []byte, fn kv.ScanFunc) error {
	var (
		rows *sql.Rows
		err  error
	)
	if hi, ok := kv.PrefixSuccessor(prefix); ok {
		rows, err = s.stmts.scanRange.QueryContext(ctx, prefix, hi)
	} else {
		rows, err = s.stmts.scanFrom.QueryContext(ctx, prefix)
	}
	if err != nil {
		return fmt.Errorf("%w: scan: %v", kv.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("%w: scan row: %v", kv.ErrStorage, err)
		}
		if err := fn(k, v); err != nil {
			if errors.Is(err, kv.ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: scan rows: %v", kv.ErrStorage, err)
	}
	return nil
}

// DropPrefix removes every key with the given prefix.
func (s *Store) DropPrefix(ctx context.Context, prefix []byte) error {
	var err error
	if hi, ok := kv.PrefixSuccessor(prefix); ok {
		_, err = s.stmts.purgeRange.ExecContext(ctx, prefix, hi)
	} else {
		_, err = s.stmts.purgeFrom.ExecContext(ctx, prefix)
	}
	if err != nil {
		return fmt.Errorf("%w: drop prefix: %v", kv.ErrStorage, err)
	}
	return nil
}

// Close closes prepared statements and the connection pool.
func (s *Store) Close() error {
	if s.stmts != nil {
		for _, stmt := range []*sql.Stmt{
			s.stmts.get, s.stmts.put, s.stmts.del,
			s.stmts.scanRange, s.stmts.scanFrom,
			s.stmts.purgeRange, s.stmts.purgeFrom,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}
	}
	return s.db.Close()
}

// IsHealthy returns true if the database responds to a ping.
func (s *Store) IsHealthy(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}
