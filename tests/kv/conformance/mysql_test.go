//go:build conformance

package conformance

import (
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"

	"github.com/quipubase/quipubase/internal/kv"
	"github.com/quipubase/quipubase/internal/kv/mysql"
)

func TestMySQLBackend(t *testing.T) {
	cfg := mysql.Config{
		Host:     getEnvOrDefault("MYSQL_HOST", "localhost"),
		Port:     getEnvOrDefaultInt("MYSQL_PORT", 3306),
		Username: getEnvOrDefault("MYSQL_USER", "quipubase"),
		Password: getEnvOrDefault("MYSQL_PASSWORD", "quipubase"),
		Database: getEnvOrDefault("MYSQL_DATABASE", "quipubase"),
		TLS:      "false",
	}

	store, err := mysql.NewStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create MySQL store: %v", err)
	}
	defer store.Close()

	RunAll(t, func(t *testing.T) kv.Store {
		truncateMySQL(t, cfg)
		return &noCloseStore{store}
	})
}

func truncateMySQL(t *testing.T, cfg mysql.Config) {
	t.Helper()

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to connect to MySQL for cleanup: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("TRUNCATE TABLE kv"); err != nil {
		t.Fatalf("Failed to clean MySQL: %v", err)
	}
}
