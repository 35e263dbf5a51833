package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ConnectionConfig holds SQLite connection settings.
type ConnectionConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long a writer waits on a lock, in milliseconds.
	BusyTimeout int

	// MaxOpenConns caps open connections. SQLite allows one writer, so
	// the default is 1 and concurrent Put calls queue at the pool.
	MaxOpenConns int

	// ConnMaxLifetime is the maximum connection age (0 = unlimited).
	ConnMaxLifetime time.Duration
}

// DefaultConnectionConfig returns the settings used by Open.
func DefaultConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{
		Path:         path,
		BusyTimeout:  5000,
		MaxOpenConns: 1,
	}
}

// NewSQLiteConnection opens a SQLite database in WAL mode with
// synchronous=FULL so every committed write survives a crash.
func NewSQLiteConnection(config ConnectionConfig) (*sql.DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("db: database path is required")
	}

	conn, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", config.Path, err)
	}

	pragmas := []struct {
		name  string
		query string
	}{
		{"journal_mode", "PRAGMA journal_mode=WAL"},
		{"synchronous", "PRAGMA synchronous=FULL"},
		{"busy_timeout", fmt.Sprintf("PRAGMA busy_timeout=%d", config.BusyTimeout)},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.query); err != nil {
			conn.Close()
			return nil, fmt.Errorf("db: set %s pragma: %w", p.name, err)
		}
	}

	if config.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(config.MaxOpenConns)
		conn.SetMaxIdleConns(config.MaxOpenConns)
	}
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)

	var journalMode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		conn.Close()
		return nil, fmt.Errorf("db: WAL mode not enabled, got %s", journalMode)
	}

	return conn, nil
}
