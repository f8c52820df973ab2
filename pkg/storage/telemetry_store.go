package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dougsko/rx320d/pkg/logging"
	_ "github.com/mattn/go-sqlite3"
)

// Sample is one signal strength reading
type Sample struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Strength  int       `json:"strength"`
	Frequency *int      `json:"frequency,omitempty"`
}

// TelemetryStore keeps signal strength history in SQLite
type TelemetryStore struct {
	db         *sql.DB
	dbPath     string
	maxSamples int
}

// NewTelemetryStore opens the store. An empty dbPath keeps everything in
// memory for the life of the process.
func NewTelemetryStore(dbPath string, maxSamples int) (*TelemetryStore, error) {
	store := &TelemetryStore{
		dbPath:     dbPath,
		maxSamples: maxSamples,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (ts *TelemetryStore) initialize() error {
	connectionString := ":memory:"
	if ts.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(ts.dbPath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		connectionString = ts.dbPath + "?_busy_timeout=10000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)
	ts.db = db

	if err := ts.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	where := ts.dbPath
	if where == "" {
		where = "memory"
	}
	logging.Infof("STORAGE", "Telemetry store initialized: %s (max %d samples)", where, ts.maxSamples)
	return nil
}

// createTables creates the database schema
func (ts *TelemetryStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS strength_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		strength INTEGER NOT NULL,
		frequency INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_strength_samples_timestamp ON strength_samples(timestamp);
	`

	_, err := ts.db.Exec(schema)
	return err
}

// StoreSamples inserts samples in one transaction and prunes old rows
func (ts *TelemetryStore) StoreSamples(samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := ts.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO strength_samples (timestamp, strength, frequency) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		var frequency sql.NullInt64
		if sample.Frequency != nil {
			frequency = sql.NullInt64{Int64: int64(*sample.Frequency), Valid: true}
		}
		if _, err := stmt.Exec(sample.Timestamp.UnixMilli(), sample.Strength, frequency); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if _, err := ts.prune(tx); err != nil {
		logging.Warnf("STORAGE", "Failed to prune samples: %v", err)
	}

	return tx.Commit()
}

// StoreSample inserts one sample
func (ts *TelemetryStore) StoreSample(sample Sample) error {
	return ts.StoreSamples([]Sample{sample})
}

// Prune removes the oldest samples beyond the configured maximum
func (ts *TelemetryStore) Prune() (int64, error) {
	tx, err := ts.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	removed, err := ts.prune(tx)
	if err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

func (ts *TelemetryStore) prune(tx *sql.Tx) (int64, error) {
	if ts.maxSamples <= 0 {
		return 0, nil // No limit
	}

	result, err := tx.Exec(`
		DELETE FROM strength_samples
		WHERE id <= (
			SELECT id FROM strength_samples
			ORDER BY id DESC
			LIMIT 1 OFFSET ?
		)
	`, ts.maxSamples)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (ts *TelemetryStore) Close() error {
	if ts.db != nil {
		return ts.db.Close()
	}
	return nil
}
