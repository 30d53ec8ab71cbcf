// Package dedupe records how many times each prediction job was delivered.
// Duplicate deliveries are legal under at-least-once semantics and the
// result store converges regardless; this table only makes them visible.
package dedupe

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Tracker counts deliveries per prediction id in Postgres.
type Tracker struct {
	db *sql.DB
}

// NewTracker opens the database and ensures the tracking table exists.
func NewTracker(databaseURL string) (*Tracker, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	t := &Tracker{db: db}
	if err := t.ensureTable(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tracker) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS job_deliveries (
			prediction_id TEXT PRIMARY KEY,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`
	if _, err := t.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create job_deliveries table: %w", err)
	}
	return nil
}

// Record upserts a delivery and returns how many times this prediction id
// has now been seen. 1 means first delivery; anything above is a redelivery.
func (t *Tracker) Record(ctx context.Context, predictionID string) (int, error) {
	query := `
		INSERT INTO job_deliveries (prediction_id, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, NOW(), NOW(), 1)
		ON CONFLICT (prediction_id) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = job_deliveries.seen_count + 1
		RETURNING seen_count
	`

	var seenCount int
	if err := t.db.QueryRowContext(ctx, query, predictionID).Scan(&seenCount); err != nil {
		return 0, fmt.Errorf("failed to record delivery: %w", err)
	}
	return seenCount, nil
}

// SeenCount returns the recorded delivery count, 0 if never seen.
func (t *Tracker) SeenCount(ctx context.Context, predictionID string) (int, error) {
	var seenCount int
	err := t.db.QueryRowContext(ctx,
		`SELECT seen_count FROM job_deliveries WHERE prediction_id = $1`, predictionID).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}
	return seenCount, nil
}

// Close releases the database connection.
func (t *Tracker) Close() error {
	return t.db.Close()
}
