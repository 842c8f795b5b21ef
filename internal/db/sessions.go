package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/swing.report/internal/units"
)

// SessionStatus is the lifecycle state of a recording session.
type SessionStatus string

const (
	StatusCalibrating SessionStatus = "calibrating"
	StatusCollecting  SessionStatus = "collecting"
	StatusAnalyzing   SessionStatus = "analyzing"
	StatusCompleted   SessionStatus = "completed"
	StatusStopped     SessionStatus = "stopped"
)

// sessionTransitions lists the allowed next states for each state.
// completed and stopped sessions may be re-analysed.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	StatusCalibrating: {StatusCollecting, StatusAnalyzing, StatusStopped},
	StatusCollecting:  {StatusAnalyzing, StatusStopped},
	StatusAnalyzing:   {StatusCompleted, StatusStopped},
	StatusCompleted:   {StatusAnalyzing},
	StatusStopped:     {StatusAnalyzing},
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	_, ok := sessionTransitions[s]
	return ok
}

// Active reports whether the session still accepts readings.
func (s SessionStatus) Active() bool {
	return s == StatusCalibrating || s == StatusCollecting
}

// CanTransition reports whether moving from s to next is allowed.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseSessionStatus validates a status string.
func ParseSessionStatus(s string) (SessionStatus, error) {
	st := SessionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown session status %q", s)
	}
	return st, nil
}

// Session is one recording session.
type Session struct {
	ID          string        `json:"session_id"`
	DeviceGroup string        `json:"device_group,omitempty"`
	Status      SessionStatus `json:"status"`
	Timezone    string        `json:"timezone"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Location returns the session timezone, falling back to UTC.
func (s *Session) Location() *time.Location {
	loc, err := units.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

const sessionColumns = `session_id, device_group, status, timezone, start_unix_nanos,
	end_unix_nanos, created_unix_nanos, updated_unix_nanos`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s                       Session
		start, created, updated int64
		end                     sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.DeviceGroup, &s.Status, &s.Timezone, &start, &end, &created, &updated); err != nil {
		return nil, err
	}
	s.StartTime = fromUnixNanos(start)
	s.EndTime = timePtr(end)
	s.CreatedAt = fromUnixNanos(created)
	s.UpdatedAt = fromUnixNanos(updated)
	return &s, nil
}

// CreateSession inserts s, filling in the ID, status, timezone and start
// time when they are unset.
func (db *DB) CreateSession(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusCalibrating
	}
	if !s.Status.Valid() {
		return fmt.Errorf("unknown session status %q", s.Status)
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if !units.IsTimezoneValid(s.Timezone) {
		return fmt.Errorf("invalid timezone %q", s.Timezone)
	}
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.DeviceGroup, s.Status, s.Timezone, toUnixNanos(s.StartTime),
		nullableNanos(s.EndTime), toUnixNanos(s.CreatedAt), toUnixNanos(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given ID or ErrSessionNotFound.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	return getSession(ctx, db, id)
}

func getSession(ctx context.Context, q queryer, id string) (*Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions returns the most recent sessions first. An empty status
// lists every status; limit <= 0 defaults to 100.
func (db *DB) ListSessions(ctx context.Context, status SessionStatus, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY start_unix_nanos DESC, created_unix_nanos DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateSessionStatus moves a session to next, rejecting transitions the
// lifecycle does not allow with ErrInvalidTransition.
func (db *DB) UpdateSessionStatus(ctx context.Context, id string, next SessionStatus) (*Session, error) {
	return db.transition(ctx, id, next, false)
}

// EndSession closes an active session: it records the end time and moves
// the session to analyzing.
func (db *DB) EndSession(ctx context.Context, id string) (*Session, error) {
	return db.transition(ctx, id, StatusAnalyzing, true)
}

func (db *DB) transition(ctx context.Context, id string, next SessionStatus, ending bool) (*Session, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	s, err := getSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if ending && !s.Status.Active() {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, id, s.Status)
	}
	if !s.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}

	now := time.Now().UTC()
	s.Status = next
	s.UpdatedAt = now
	if ending && s.EndTime == nil {
		s.EndTime = &now
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET status = ?, end_unix_nanos = ?, updated_unix_nanos = ?
		WHERE session_id = ?`,
		s.Status, nullableNanos(s.EndTime), toUnixNanos(now), id,
	); err != nil {
		return nil, fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s, nil
}

// ActiveSession returns the most recently started session that still
// accepts readings, or ErrSessionNotFound.
func (db *DB) ActiveSession(ctx context.Context) (*Session, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status IN (?, ?)
		ORDER BY start_unix_nanos DESC, created_unix_nanos DESC
		LIMIT 1`, StatusCalibrating, StatusCollecting)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active session", ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	return s, nil
}
