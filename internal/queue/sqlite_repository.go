package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/waypost/waypost/internal/record"
)

// SQLiteRepository is the durable SQLite implementation of Repository.
// Durability comes from the storage layer's synchronous=FULL pragma: a
// committed insert has hit the disk before Enqueue returns.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed delivery queue.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Enqueue durably appends a queued record and returns its assigned ID.
func (r *SQLiteRepository) Enqueue(ctx context.Context, loc *record.Location) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO locations (
			latitude, longitude, altitude, accuracy, speed, bearing,
			battery_level, battery_status, timestamp, state, attempts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		loc.Latitude,
		loc.Longitude,
		loc.Altitude,
		loc.Accuracy,
		loc.Speed,
		loc.Bearing,
		loc.BatteryLevel,
		string(loc.BatteryStatus),
		loc.Timestamp,
		string(record.StateQueued),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue location: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}

	loc.ID = id
	loc.State = record.StateQueued
	return id, nil
}

// PeekBatch returns up to max of the oldest queued records in ID order.
func (r *SQLiteRepository) PeekBatch(ctx context.Context, max int) ([]*record.Location, error) {
	if max <= 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, latitude, longitude, altitude, accuracy, speed, bearing,
		       battery_level, battery_status, timestamp, state, attempts, last_attempt_at
		FROM locations
		WHERE state = ?
		ORDER BY id ASC
		LIMIT ?`,
		string(record.StateQueued), max,
	)
	if err != nil {
		return nil, fmt.Errorf("peek batch: %w", err)
	}
	defer rows.Close()

	var locations []*record.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("peek batch rows: %w", err)
	}

	return locations, nil
}

// MarkSent transitions the given queued records to sent in one transaction.
func (r *SQLiteRepository) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}

	query := fmt.Sprintf(`
		UPDATE locations
		SET state = ?, last_attempt_at = ?
		WHERE id IN (%s) AND state = ?`,
		placeholders(len(ids)),
	)

	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, string(record.StateSent), time.Now().Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(record.StateQueued))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkFailed bumps attempt bookkeeping for the given records in one
// transaction, transitioning them to failed when permanent is true.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, ids []int64, permanent bool) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}

	state := record.StateQueued
	if permanent {
		state = record.StateFailed
	}

	query := fmt.Sprintf(`
		UPDATE locations
		SET state = ?, attempts = attempts + 1, last_attempt_at = ?
		WHERE id IN (%s) AND state = ?`,
		placeholders(len(ids)),
	)

	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, string(state), time.Now().Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(record.StateQueued))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// PurgeSent deletes sent records captured before olderThan.
func (r *SQLiteRepository) PurgeSent(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM locations
		WHERE state = ? AND timestamp < ?`,
		string(record.StateSent), olderThan.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge sent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sent rows affected: %w", err)
	}
	return n, nil
}

// Stats returns queue counts by delivery state.
func (r *SQLiteRepository) Stats(ctx context.Context) (record.QueueStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM locations GROUP BY state`)
	if err != nil {
		return record.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats record.QueueStats
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return record.QueueStats{}, fmt.Errorf("scan queue stats: %w", err)
		}
		switch record.DeliveryState(state) {
		case record.StateQueued:
			stats.Queued = count
		case record.StateSent:
			stats.Sent = count
		case record.StateFailed:
			stats.Failed = count
		}
	}

	if err := rows.Err(); err != nil {
		return record.QueueStats{}, fmt.Errorf("queue stats rows: %w", err)
	}
	return stats, nil
}

// scanLocation scans a single location row.
func scanLocation(rows *sql.Rows) (*record.Location, error) {
	var loc record.Location
	var batteryStatus, state string

	err := rows.Scan(
		&loc.ID,
		&loc.Latitude,
		&loc.Longitude,
		&loc.Altitude,
		&loc.Accuracy,
		&loc.Speed,
		&loc.Bearing,
		&loc.BatteryLevel,
		&batteryStatus,
		&loc.Timestamp,
		&state,
		&loc.Attempts,
		&loc.LastAttemptAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan location: %w", err)
	}

	loc.BatteryStatus = record.BatteryStatus(batteryStatus)
	loc.State = record.DeliveryState(state)
	return &loc, nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
