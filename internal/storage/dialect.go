package storage

import (
	"strconv"
	"strings"
)

// dialect captures the few differences between sqlite3 and postgres.
type dialect struct {
	name   string
	schema string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var sqliteDialect = dialect{
	name: "sqlite3",
	schema: `
	CREATE TABLE IF NOT EXISTS bins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		latest_level INTEGER NOT NULL DEFAULT 0,
		last_alert_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bin_name TEXT NOT NULL,
		level INTEGER NOT NULL,
		ts TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_bin_ts ON readings(bin_name, ts);
	CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS action_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action_type TEXT NOT NULL,
		detail TEXT,
		ts TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_action_logs_ts ON action_logs(ts);`,
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	schema: `
	CREATE TABLE IF NOT EXISTS bins (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(32) NOT NULL UNIQUE,
		latest_level INTEGER NOT NULL DEFAULT 0,
		last_alert_at BIGINT NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS readings (
		id BIGSERIAL PRIMARY KEY,
		bin_name VARCHAR(32) NOT NULL,
		level INTEGER NOT NULL,
		ts TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_bin_ts ON readings(bin_name, ts);
	CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);
	CREATE TABLE IF NOT EXISTS settings (
		key VARCHAR(64) PRIMARY KEY,
		value VARCHAR(256) NOT NULL
	);
	CREATE TABLE IF NOT EXISTS action_logs (
		id BIGSERIAL PRIMARY KEY,
		action_type VARCHAR(64) NOT NULL,
		detail VARCHAR(512),
		ts TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_action_logs_ts ON action_logs(ts);`,
}

func dialectFor(driver string) (dialect, bool) {
	switch driver {
	case "sqlite3":
		return sqliteDialect, true
	case "postgres":
		return postgresDialect, true
	default:
		return dialect{}, false
	}
}

// rebind rewrites ? placeholders for drivers that want numbered ones.
// Queries in this package never contain a literal '?'.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
