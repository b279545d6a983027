package storage

import (
	"context"
	"time"

	"binwatch/internal/models"
)

// BinRepository owns the bin registry.
type BinRepository interface {
	// EnsureBins creates missing bins with level 0 and no alert history.
	EnsureBins(ctx context.Context, names []models.BinName) error
	ListBins(ctx context.Context) ([]models.Bin, error)
	// GetBin returns models.ErrBinNotFound when no row exists.
	GetBin(ctx context.Context, name models.BinName) (*models.Bin, error)
	// RecordReading sets the latest level (creating the bin if needed), appends a
	// reading and returns the bin state, all in one transaction.
	RecordReading(ctx context.Context, name models.BinName, level int, at time.Time) (*models.Bin, error)
	// MarkAlerted moves last_alert_at forward to at; earlier values are ignored.
	MarkAlerted(ctx context.Context, name models.BinName, at time.Time) error
}

// ReadingRepository reads the append-only reading log.
type ReadingRepository interface {
	// RecentReadings returns up to limit readings of one bin, newest first.
	RecentReadings(ctx context.Context, name models.BinName, limit int) ([]models.Reading, error)
	// LatestReadings returns up to limit readings across all bins, newest first.
	LatestReadings(ctx context.Context, limit int) ([]models.Reading, error)
}

// SettingsStore is a string key/value store without history.
type SettingsStore interface {
	// GetSetting reports found=false for unknown keys.
	GetSetting(ctx context.Context, key string) (value string, found bool, err error)
	SetSetting(ctx context.Context, key, value string) error
}

// ActionRecorder appends and lists audit entries.
type ActionRecorder interface {
	RecordAction(ctx context.Context, entry models.ActionLogEntry) error
	// RecentActions returns up to limit entries, newest first.
	RecentActions(ctx context.Context, limit int) ([]models.ActionLogEntry, error)
}

// Store is everything the service persists.
type Store interface {
	BinRepository
	ReadingRepository
	SettingsStore
	ActionRecorder
	Ping(ctx context.Context) error
	Close() error
}
