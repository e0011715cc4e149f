package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteRepository is the SQLite implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite profile repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const profileColumns = `id, name, condition, threshold, interval_ms, distance_m, sync_interval_s, enabled, priority, deactivation_delay_s, created_at`

// List returns all profiles ordered by priority, highest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY priority DESC, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles rows: %w", err)
	}
	return profiles, nil
}

// Get retrieves a profile by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create stores a new profile.
func (r *SQLiteRepository) Create(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Condition), p.Threshold,
		p.Overrides.CaptureIntervalMs, p.Overrides.DistanceMeters, p.Overrides.SyncIntervalSec,
		p.Enabled, p.Priority, p.DeactivationDelaySec, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// Update replaces an existing profile.
func (r *SQLiteRepository) Update(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET name = ?, condition = ?, threshold = ?, interval_ms = ?,
		    distance_m = ?, sync_interval_s = ?, enabled = ?, priority = ?, deactivation_delay_s = ?
		WHERE id = ?`,
		p.Name, string(p.Condition), p.Threshold,
		p.Overrides.CaptureIntervalMs, p.Overrides.DistanceMeters, p.Overrides.SyncIntervalSec,
		p.Enabled, p.Priority, p.DeactivationDelaySec, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile rows affected: %w", err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// Delete removes a profile.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile rows affected: %w", err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(s scanner) (*Profile, error) {
	var p Profile
	var condition string
	var threshold sql.NullFloat64

	err := s.Scan(
		&p.ID,
		&p.Name,
		&condition,
		&threshold,
		&p.Overrides.CaptureIntervalMs,
		&p.Overrides.DistanceMeters,
		&p.Overrides.SyncIntervalSec,
		&p.Enabled,
		&p.Priority,
		&p.DeactivationDelaySec,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	p.Condition = Condition(condition)
	if threshold.Valid {
		p.Threshold = threshold.Float64
	}
	return &p, nil
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
