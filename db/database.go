package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Database owns the SQLite connection for one Flowstate instance and
// runs migrations on open. Stores share the underlying connection.
//
// Usage:
//
//	database, err := db.Open("/path/to/flowstate.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer database.Close()
//
//	sessions := db.NewSessionStore(database)
type Database struct {
	conn *sql.DB
	path string

	closeOnce sync.Once
	closeErr  error
}

// Open creates the database file (and parent directories) if needed,
// connects with WAL mode, and applies pending migrations.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DefaultConnectionConfig(path))
}

// OpenWithConfig is Open with custom connection tuning.
func OpenWithConfig(config ConnectionConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := NewSQLiteConnection(config)
	if err != nil {
		return nil, err
	}

	if err := MigrateUp(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &Database{conn: conn, path: config.Path}, nil
}

// Conn exposes the underlying connection for stores.
func (d *Database) Conn() *sql.DB {
	return d.conn
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close checkpoints the WAL and closes the connection. Safe to call
// more than once.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		// Fold the WAL back into the main file so a clean shutdown
		// leaves a single portable database file
		if _, err := d.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			d.closeErr = fmt.Errorf("failed to checkpoint WAL: %w", err)
		}
		if err := d.conn.Close(); err != nil && d.closeErr == nil {
			d.closeErr = fmt.Errorf("failed to close database: %w", err)
		}
	})
	return d.closeErr
}
