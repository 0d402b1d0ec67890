package breezer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device catalogue persistence.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all known devices.
	List(ctx context.Context) ([]Device, error)

	// Upsert inserts a device on first discovery or refreshes its
	// mutable attributes (name, humidifier flag) on later polls.
	Upsert(ctx context.Context, device Device) error

	// SaveDiagnostics persists the cumulative diagnostics counters so
	// they survive restarts.
	SaveDiagnostics(ctx context.Context, d Diagnostics) error

	// LoadDiagnostics restores the persisted counters. Returns zero
	// counters when none were saved yet.
	LoadDiagnostics(ctx context.Context) (Diagnostics, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// schema migrations already applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT id, name, model_class, has_humidifier, first_seen
		FROM devices
		WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all known devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, name, model_class, has_humidifier, first_seen
		FROM devices
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// Upsert inserts or refreshes a device record. The first_seen
// timestamp of an existing record is preserved.
func (r *SQLiteRepository) Upsert(ctx context.Context, device Device) error {
	query := `
		INSERT INTO devices (id, name, model_class, has_humidifier, first_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			model_class = excluded.model_class,
			has_humidifier = excluded.has_humidifier`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		string(device.Model),
		device.HasHumidifier,
		device.FirstSeen.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", device.ID, err)
	}
	return nil
}

// SaveDiagnostics persists the cumulative counters as the single row
// of the diagnostics table.
func (r *SQLiteRepository) SaveDiagnostics(ctx context.Context, d Diagnostics) error {
	query := `
		INSERT INTO diagnostics (id, successful_polls, failed_polls, retries, reauths, last_error_class)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			successful_polls = excluded.successful_polls,
			failed_polls = excluded.failed_polls,
			retries = excluded.retries,
			reauths = excluded.reauths,
			last_error_class = excluded.last_error_class`

	_, err := r.db.ExecContext(ctx, query,
		d.SuccessfulPolls,
		d.FailedPolls,
		d.Retries,
		d.Reauths,
		d.LastErrorClass,
	)
	if err != nil {
		return fmt.Errorf("saving diagnostics: %w", err)
	}
	return nil
}

// LoadDiagnostics restores the persisted counters.
func (r *SQLiteRepository) LoadDiagnostics(ctx context.Context) (Diagnostics, error) {
	query := `
		SELECT successful_polls, failed_polls, retries, reauths, last_error_class
		FROM diagnostics
		WHERE id = 1`

	var d Diagnostics
	err := r.db.QueryRowContext(ctx, query).Scan(
		&d.SuccessfulPolls,
		&d.FailedPolls,
		&d.Retries,
		&d.Reauths,
		&d.LastErrorClass,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Diagnostics{}, nil
	}
	if err != nil {
		return Diagnostics{}, fmt.Errorf("loading diagnostics: %w", err)
	}
	return d, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var (
		device    Device
		model     string
		firstSeen string
	)
	if err := s.Scan(&device.ID, &device.Name, &model, &device.HasHumidifier, &firstSeen); err != nil {
		return nil, err
	}
	device.Model = ModelClass(model)
	if ts, err := time.Parse(time.RFC3339, firstSeen); err == nil {
		device.FirstSeen = ts
	}
	return &device, nil
}
