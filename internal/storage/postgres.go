package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"binwatch/internal/config"
)

// openPostgres opens a pooled PostgreSQL connection and checks it is reachable.
func openPostgres(ctx context.Context, cfg config.StorageConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres requires DATABASE_URL")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
