package geofence

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

// NewSQLiteRepository creates a new SQLite geofence repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const geofenceColumns = `id, name, latitude, longitude, radius_m, enabled, pause_tracking, created_at`

// List returns all geofences ordered by creation time.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Geofence, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+geofenceColumns+` FROM geofences ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list geofences: %w", err)
	}
	defer rows.Close()

	var zones []*Geofence
	for rows.Next() {
		zone, err := scanGeofence(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, zone)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list geofences rows: %w", err)
	}
	return zones, nil
}

// Get retrieves a geofence by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Geofence, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+geofenceColumns+` FROM geofences WHERE id = ?`, id)

	zone, err := scanGeofence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGeofenceNotFound
		}
		return nil, err
	}
	return zone, nil
}

// Create stores a new geofence.
func (r *SQLiteRepository) Create(ctx context.Context, g *Geofence) error {
	if err := g.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO geofences (`+geofenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Latitude, g.Longitude, g.RadiusMeters,
		g.Enabled, g.PauseTracking, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create geofence: %w", err)
	}
	return nil
}

// Update replaces an existing geofence.
func (r *SQLiteRepository) Update(ctx context.Context, g *Geofence) error {
	if err := g.Validate(); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE geofences
		SET name = ?, latitude = ?, longitude = ?, radius_m = ?,
		    enabled = ?, pause_tracking = ?
		WHERE id = ?`,
		g.Name, g.Latitude, g.Longitude, g.RadiusMeters,
		g.Enabled, g.PauseTracking, g.ID,
	)
	if err != nil {
		return fmt.Errorf("update geofence: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update geofence rows affected: %w", err)
	}
	if n == 0 {
		return ErrGeofenceNotFound
	}
	return nil
}

// Delete removes a geofence.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM geofences WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete geofence: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete geofence rows affected: %w", err)
	}
	if n == 0 {
		return ErrGeofenceNotFound
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGeofence(s scanner) (*Geofence, error) {
	var g Geofence
	err := s.Scan(
		&g.ID,
		&g.Name,
		&g.Latitude,
		&g.Longitude,
		&g.RadiusMeters,
		&g.Enabled,
		&g.PauseTracking,
		&g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan geofence: %w", err)
	}
	return &g, nil
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
