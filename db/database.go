// Package db persists generated images and application settings in a
// local SQLite database.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Database owns the SQLite connection and its schema.
//
// Example:
//
//	database, err := db.Open("./data/pixelbatch.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//
//	images := db.NewImageRepository(database)
type Database struct {
	db   *sql.DB
	path string

	mu     sync.RWMutex
	closed bool
}

// Open creates the parent directory if needed, applies migrations and
// returns a ready Database.
func Open(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create directory %s: %w", dir, err)
		}
	}

	if err := MigrateUp(path); err != nil {
		return nil, err
	}

	conn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, err
	}

	return &Database{db: conn, path: path}, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// DB returns the underlying connection pool.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("db: database is closed")
	}
	return d.db.PingContext(ctx)
}

// Close closes the connection. Calling Close twice is safe.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
