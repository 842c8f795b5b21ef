package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/swing.report/internal/swing"
)

// Reading is one stored sensor sample. SessionID is empty for samples
// received while no session was active.
type Reading struct {
	ID         int64  `json:"data_id"`
	SessionID  string `json:"session_id,omitempty"`
	DeviceCode string `json:"device_code"`
	swing.SensorReading
	ReceivedAt time.Time `json:"received_at"`
}

// ReadingResult is the per-item outcome of RecordReadings.
type ReadingResult struct {
	Index int    `json:"index"`
	ID    int64  `json:"data_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the item was stored.
func (r ReadingResult) OK() bool { return r.Error == "" }

// ReadingStats summarises the readings stored for one session.
type ReadingStats struct {
	Total         int                      `json:"total_data_points"`
	ByRole        map[swing.SensorRole]int `json:"by_sensor_type"`
	FirstResolved *time.Time               `json:"first_resolved,omitempty"`
	LastResolved  *time.Time               `json:"last_resolved,omitempty"`
}

// ActiveRoles returns the number of roles with at least one reading.
func (s ReadingStats) ActiveRoles() int { return len(s.ByRole) }

// RecordReading stores r. A reading that names a session is only accepted
// while that session is active; the first reading of a calibrating
// session moves it to collecting.
func (db *DB) RecordReading(ctx context.Context, r *Reading) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := checkReadingSession(ctx, tx, r.SessionID, map[string]error{}); err != nil {
		return err
	}
	if err := insertReading(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordReadings stores a batch in one transaction. Items that fail
// validation are reported in their result and do not abort the batch;
// the returned error is reserved for storage failures.
func (db *DB) RecordReadings(ctx context.Context, rs []Reading) ([]ReadingResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	checked := map[string]error{}
	results := make([]ReadingResult, len(rs))
	for i := range rs {
		results[i].Index = i
		if err := checkReadingSession(ctx, tx, rs[i].SessionID, checked); err != nil {
			results[i].Error = err.Error()
			continue
		}
		if !rs[i].Role.Valid() {
			results[i].Error = fmt.Sprintf("%v: %q", swing.ErrUnknownRole, rs[i].Role)
			continue
		}
		if err := insertReading(ctx, tx, &rs[i]); err != nil {
			return nil, err
		}
		results[i].ID = rs[i].ID
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkReadingSession verifies the session accepts readings, caching the
// verdict per session for the rest of the transaction.
func checkReadingSession(ctx context.Context, tx *sql.Tx, sessionID string, checked map[string]error) error {
	if sessionID == "" {
		return nil
	}
	if err, ok := checked[sessionID]; ok {
		return err
	}
	s, err := getSession(ctx, tx, sessionID)
	if err == nil && !s.Status.Active() {
		err = fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, s.Status)
	}
	if err == nil && s.Status == StatusCalibrating {
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET status = ?, updated_unix_nanos = ? WHERE session_id = ?`,
			StatusCollecting, time.Now().UnixNano(), sessionID)
	}
	checked[sessionID] = err
	return err
}

func insertReading(ctx context.Context, q queryer, r *Reading) error {
	if !r.Role.Valid() {
		return fmt.Errorf("%w: %q", swing.ErrUnknownRole, r.Role)
	}
	payload, err := json.Marshal(swing.PayloadOf(r.SensorReading))
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}
	sessionID := sql.NullString{String: r.SessionID, Valid: r.SessionID != ""}

	res, err := q.ExecContext(ctx, `
		INSERT INTO sensor_readings (
			session_id, device_code, sensor_type, raw_timestamp,
			resolved_unix_nanos, payload_json, received_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.DeviceCode, r.Role, string(r.Timestamp),
		nullableNanos(r.ResolvedTime), string(payload), toUnixNanos(r.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	if r.DeviceCode != "" {
		if _, err := q.ExecContext(ctx, `UPDATE devices SET last_seen_unix_nanos = ? WHERE device_code = ?`,
			toUnixNanos(r.ReceivedAt), r.DeviceCode); err != nil {
			return fmt.Errorf("failed to touch device %s: %w", r.DeviceCode, err)
		}
	}
	return nil
}

// SessionReadings returns the readings of a session in arrival order.
func (db *DB) SessionReadings(ctx context.Context, sessionID string) ([]swing.SensorReading, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sensor_type, raw_timestamp, resolved_unix_nanos, payload_json
		FROM sensor_readings
		WHERE session_id = ?
		ORDER BY reading_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var out []swing.SensorReading
	for rows.Next() {
		var (
			role     string
			raw      string
			resolved sql.NullInt64
			payload  string
		)
		if err := rows.Scan(&role, &raw, &resolved, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		p, err := swing.DecodePayload([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("stored reading for session %s: %w", sessionID, err)
		}
		r := p.Reading(swing.SensorRole(role), swing.RawTimestamp(raw))
		r.ResolvedTime = timePtr(resolved)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadingStats counts the readings of a session per role and reports the
// span of resolved timestamps.
func (db *DB) ReadingStats(ctx context.Context, sessionID string) (ReadingStats, error) {
	stats := ReadingStats{ByRole: map[swing.SensorRole]int{}}

	rows, err := db.QueryContext(ctx, `
		SELECT sensor_type, COUNT(*) FROM sensor_readings
		WHERE session_id = ? GROUP BY sensor_type`, sessionID)
	if err != nil {
		return stats, fmt.Errorf("failed to count readings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return stats, err
		}
		stats.ByRole[swing.SensorRole(role)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var first, last sql.NullInt64
	if err := db.QueryRowContext(ctx, `
		SELECT MIN(resolved_unix_nanos), MAX(resolved_unix_nanos)
		FROM sensor_readings WHERE session_id = ?`, sessionID).Scan(&first, &last); err != nil {
		return stats, fmt.Errorf("failed to read time span: %w", err)
	}
	stats.FirstResolved = timePtr(first)
	stats.LastResolved = timePtr(last)
	return stats, nil
}
