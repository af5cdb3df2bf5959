// Package sqlite provides SQLite-backed persistence for events,
// snapshots, processor checkpoints and idempotency keys, using the
// pure-Go driver (no CGo).
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"loom/errors"
)

// Config describes how to open the database.
type Config struct {
	// DSN is a file path or ":memory:" for tests.
	DSN string

	// WALMode enables write-ahead logging, recommended for file
	// databases. Ignored for in-memory databases.
	WALMode bool

	// BusyTimeout bounds lock waits, default 5s.
	BusyTimeout time.Duration

	MaxOpenConns int
	MaxIdleConns int
}

// DefaultConfig returns sensible defaults for a file database.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:          dsn,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
		MaxIdleConns: 5,
	}
}

// DB wraps a sql.DB shared by the stores in this package.
type DB struct {
	conn *sql.DB
}

// Open opens the database and applies pragmas.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "sqlite dsn is empty")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	conn, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeStorage, "open sqlite database")
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	if cfg.WALMode && cfg.DSN != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, errors.WrapError(err, errors.ErrCodeStorage, "apply sqlite pragma")
		}
	}
	return &DB{conn: conn}, nil
}

// OpenMemory opens a throwaway in-memory database.
func OpenMemory() (*DB, error) {
	return Open(Config{DSN: ":memory:", MaxOpenConns: 1})
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) migrate(ddl string) error {
	if _, err := d.conn.Exec(ddl); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "run sqlite migration")
	}
	return nil
}
