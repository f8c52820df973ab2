package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// TelemetryStats summarizes stored samples
type TelemetryStats struct {
	Count   int        `json:"count"`
	Min     int        `json:"min"`
	Max     int        `json:"max"`
	Average float64    `json:"average"`
	First   *time.Time `json:"first,omitempty"`
	Last    *time.Time `json:"last,omitempty"`
}

// Recent returns up to limit samples, newest first
func (ts *TelemetryStore) Recent(limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := ts.db.Query(`
		SELECT id, timestamp, strength, frequency
		FROM strength_samples
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// Between returns samples taken in [since, until], oldest first
func (ts *TelemetryStore) Between(since, until time.Time) ([]Sample, error) {
	rows, err := ts.db.Query(`
		SELECT id, timestamp, strength, frequency
		FROM strength_samples
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY id ASC
	`, since.UnixMilli(), until.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

func scanSamples(rows *sql.Rows) ([]Sample, error) {
	samples := make([]Sample, 0)
	for rows.Next() {
		var (
			sample    Sample
			millis    int64
			frequency sql.NullInt64
		)
		if err := rows.Scan(&sample.ID, &millis, &sample.Strength, &frequency); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample.Timestamp = time.UnixMilli(millis).UTC()
		if frequency.Valid {
			f := int(frequency.Int64)
			sample.Frequency = &f
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// Count returns the number of stored samples
func (ts *TelemetryStore) Count() (int, error) {
	var count int
	err := ts.db.QueryRow("SELECT COUNT(*) FROM strength_samples").Scan(&count)
	return count, err
}

// Stats summarizes samples taken at or after since. A zero since covers everything.
func (ts *TelemetryStore) Stats(since time.Time) (TelemetryStats, error) {
	var (
		stats   TelemetryStats
		min     sql.NullInt64
		max     sql.NullInt64
		average sql.NullFloat64
		first   sql.NullInt64
		last    sql.NullInt64
	)

	var cutoff int64
	if !since.IsZero() {
		cutoff = since.UnixMilli()
	}

	err := ts.db.QueryRow(`
		SELECT COUNT(*), MIN(strength), MAX(strength), AVG(strength),
			MIN(timestamp), MAX(timestamp)
		FROM strength_samples
		WHERE timestamp >= ?
	`, cutoff).Scan(&stats.Count, &min, &max, &average, &first, &last)
	if err != nil {
		return stats, fmt.Errorf("failed to query stats: %w", err)
	}

	stats.Min = int(min.Int64)
	stats.Max = int(max.Int64)
	stats.Average = average.Float64
	if first.Valid {
		t := time.UnixMilli(first.Int64).UTC()
		stats.First = &t
	}
	if last.Valid {
		t := time.UnixMilli(last.Int64).UTC()
		stats.Last = &t
	}
	return stats, nil
}
