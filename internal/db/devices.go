package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Device is a registered sensor node.
type Device struct {
	Code         string     `json:"device_code"`
	SensorType   string     `json:"sensor_type,omitempty"`
	Address      string     `json:"address,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
}

// UpsertDevice registers a device or updates its role and address.
func (db *DB) UpsertDevice(ctx context.Context, d *Device) error {
	if d.Code == "" {
		return errors.New("device_code required")
	}
	if d.RegisteredAt.IsZero() {
		d.RegisteredAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO devices (device_code, sensor_type, address, registered_unix_nanos)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (device_code) DO UPDATE SET
			sensor_type = excluded.sensor_type,
			address = excluded.address`,
		d.Code, d.SensorType, d.Address, toUnixNanos(d.RegisteredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to register device %s: %w", d.Code, err)
	}
	return nil
}

// GetDevice returns one device or ErrDeviceNotFound.
func (db *DB) GetDevice(ctx context.Context, code string) (*Device, error) {
	row := db.QueryRowContext(ctx, `
		SELECT device_code, sensor_type, address, registered_unix_nanos, last_seen_unix_nanos
		FROM devices WHERE device_code = ?`, code)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, code)
	}
	return d, err
}

// ListDevices returns every registered device ordered by code.
func (db *DB) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT device_code, sensor_type, address, registered_unix_nanos, last_seen_unix_nanos
		FROM devices ORDER BY device_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDevice(row scanner) (*Device, error) {
	var (
		d          Device
		registered int64
		lastSeen   sql.NullInt64
	)
	if err := row.Scan(&d.Code, &d.SensorType, &d.Address, &registered, &lastSeen); err != nil {
		return nil, err
	}
	d.RegisteredAt = fromUnixNanos(registered)
	d.LastSeen = timePtr(lastSeen)
	return &d, nil
}
