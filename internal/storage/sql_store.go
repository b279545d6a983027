package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"binwatch/internal/config"
	"binwatch/internal/logger"
	"binwatch/internal/models"
)

// SQLStore implements Store on database/sql for sqlite3 and postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the configured backend and creates the schema if missing.
func Open(ctx context.Context, cfg config.StorageConfig) (*SQLStore, error) {
	log := logger.WithComponent("storage")

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite3":
		db, err = openSQLite(ctx, cfg)
	case "postgres":
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	store, err := NewSQLStore(db, cfg.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", cfg.Driver).Msg("storage ready")
	return store, nil
}

// NewSQLStore wraps an open database. The schema is not touched.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	d, ok := dialectFor(driver)
	if !ok {
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Migrate creates tables and indexes if they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

// EnsureBins seeds missing bins
func (s *SQLStore) EnsureBins(ctx context.Context, names []models.BinName) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, name := range names {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO bins(name, latest_level, last_alert_at)
			VALUES(?, 0, 0)
			ON CONFLICT(name) DO NOTHING`), string(name))
		if err != nil {
			return fmt.Errorf("failed to seed bin %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListBins returns every bin ordered by name
func (s *SQLStore) ListBins(ctx context.Context) ([]models.Bin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, latest_level, last_alert_at FROM bins ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bins: %w", err)
	}
	defer rows.Close()

	var bins []models.Bin
	for rows.Next() {
		bin, err := scanBin(rows)
		if err != nil {
			return nil, err
		}
		bins = append(bins, *bin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return bins, nil
}

// GetBin loads a single bin
func (s *SQLStore) GetBin(ctx context.Context, name models.BinName) (*models.Bin, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT name, latest_level, last_alert_at FROM bins WHERE name = ?`), string(name))
	bin, err := scanBin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBinNotFound
	}
	return bin, err
}

// RecordReading upserts the bin level and appends the reading atomically
func (s *SQLStore) RecordReading(ctx context.Context, name models.BinName, level int, at time.Time) (*models.Bin, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO bins(name, latest_level, last_alert_at)
		VALUES(?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET latest_level = excluded.latest_level`),
		string(name), level)
	if err != nil {
		return nil, fmt.Errorf("failed to update bin %s: %w", name, err)
	}

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO readings(bin_name, level, ts) VALUES(?, ?, ?)`),
		string(name), level, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert reading for %s: %w", name, err)
	}

	bin, err := scanBin(tx.QueryRowContext(ctx, s.q(`SELECT name, latest_level, last_alert_at FROM bins WHERE name = ?`), string(name)))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bin, nil
}

// MarkAlerted advances last_alert_at; it never moves backwards
func (s *SQLStore) MarkAlerted(ctx context.Context, name models.BinName, at time.Time) error {
	ms := at.UnixMilli()
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE bins SET last_alert_at = ? WHERE name = ? AND last_alert_at < ?`),
		ms, string(name), ms)
	if err != nil {
		return fmt.Errorf("failed to update alert time for %s: %w", name, err)
	}
	return nil
}

// RecentReadings returns the newest readings of a bin first
func (s *SQLStore) RecentReadings(ctx context.Context, name models.BinName, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		return []models.Reading{}, nil
	}
	return s.queryReadings(ctx, s.q(`
		SELECT id, bin_name, level, ts FROM readings
		WHERE bin_name = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`), string(name), limit)
}

// LatestReadings returns the newest readings across bins first
func (s *SQLStore) LatestReadings(ctx context.Context, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		return []models.Reading{}, nil
	}
	return s.queryReadings(ctx, s.q(`
		SELECT id, bin_name, level, ts FROM readings
		ORDER BY ts DESC, id DESC
		LIMIT ?`), limit)
}

func (s *SQLStore) queryReadings(ctx context.Context, query string, args ...interface{}) ([]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := make([]models.Reading, 0)
	for rows.Next() {
		var (
			r   models.Reading
			bin string
		)
		if err := rows.Scan(&r.ID, &bin, &r.Level, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Bin = models.BinName(bin)
		r.Timestamp = r.Timestamp.UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return readings, nil
}

// GetSetting reads a setting by key
func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT value FROM settings WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting creates or replaces a setting
func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO settings(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`), key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// RecordAction appends an audit entry
func (s *SQLStore) RecordAction(ctx context.Context, entry models.ActionLogEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO action_logs(action_type, detail, ts) VALUES(?, ?, ?)`),
		string(entry.Action), entry.Detail, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert action %s: %w", entry.Action, err)
	}
	return nil
}

// RecentActions lists audit entries newest first
func (s *SQLStore) RecentActions(ctx context.Context, limit int) ([]models.ActionLogEntry, error) {
	if limit <= 0 {
		return []models.ActionLogEntry{}, nil
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, action_type, detail, ts FROM action_logs
		ORDER BY ts DESC, id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	entries := make([]models.ActionLogEntry, 0)
	for rows.Next() {
		var (
			e      models.ActionLogEntry
			action string
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &action, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		e.Action = models.ActionType(action)
		e.Detail = detail.String
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBin(row rowScanner) (*models.Bin, error) {
	var (
		bin     models.Bin
		name    string
		alertMs int64
	)
	if err := row.Scan(&name, &bin.LatestLevel, &alertMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan bin: %w", err)
	}
	bin.Name = models.BinName(name)
	bin.LastAlertAt = time.UnixMilli(alertMs).UTC()
	return &bin, nil
}
