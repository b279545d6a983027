package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"binwatch/internal/config"
)

const defaultSQLitePath = "bins.db"

// openSQLite opens (and creates if needed) a SQLite database file.
// SQLite allows one writer, so the pool is limited to a single connection;
// this also keeps ":memory:" databases alive for the life of the store.
func openSQLite(ctx context.Context, cfg config.StorageConfig) (*sql.DB, error) {
	path := cfg.DSN
	if path == "" {
		path = defaultSQLitePath
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
