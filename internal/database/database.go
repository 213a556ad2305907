package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var ErrNotFound = errors.New("database: not found")

// DB wraps sql.DB for the schedule store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path and creates missing tables.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dsn := "file::memory:?_foreign_keys=on"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool := poolFor(path)
	db.SetMaxOpenConns(pool.maxOpen)
	db.SetMaxIdleConns(pool.maxIdle)
	if pool.lifetime > 0 {
		db.SetConnMaxLifetime(pool.lifetime)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: db, path: path, logger: logger}, nil
}

type poolLimits struct {
	maxOpen, maxIdle int
	lifetime         time.Duration
}

// poolFor sizes the connection pool. Every connection to :memory: is a
// separate database, so the single one is never recycled.
func poolFor(path string) poolLimits {
	if path == MemoryPath {
		return poolLimits{maxOpen: 1, maxIdle: 1}
	}
	return poolLimits{maxOpen: 10, maxIdle: 5, lifetime: time.Hour}
}

// Path is the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			time_zone TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS available_periods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id INTEGER NOT NULL,
			week_day INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			valid_from TEXT NOT NULL,
			valid_until TEXT,
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS custom_periods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS overtimes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			duration INTEGER NOT NULL,
			creator_id INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS downtimes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_date TEXT NOT NULL,
			to_date TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			time_zone TEXT NOT NULL DEFAULT '',
			utc_offset INTEGER NOT NULL DEFAULT 0,
			type_id INTEGER NOT NULL DEFAULT 0,
			creator_id INTEGER NOT NULL DEFAULT 0,
			details TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS downtime_resources (
			downtime_id INTEGER NOT NULL,
			resource_id INTEGER NOT NULL,
			PRIMARY KEY (downtime_id, resource_id),
			FOREIGN KEY (downtime_id) REFERENCES downtimes(id) ON DELETE CASCADE,
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS booking_durations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			minutes INTEGER NOT NULL,
			start_time INTEGER,
			end_time INTEGER,
			waiting BOOLEAN NOT NULL DEFAULT 0,
			downtime_id INTEGER,
			FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_periods_resource ON available_periods(resource_id, week_day)`,
		`CREATE INDEX IF NOT EXISTS idx_custom_resource_date ON custom_periods(resource_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_overtimes_resource_date ON overtimes(resource_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_downtimes_dates ON downtimes(from_date, to_date)`,
		`CREATE INDEX IF NOT EXISTS idx_downtime_resources_resource ON downtime_resources(resource_id)`,
		`CREATE INDEX IF NOT EXISTS idx_durations_booking_date ON booking_durations(booking_id, date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
