package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/swing.report/internal/swing"
)

// ReportSummary is the listing form of a stored analysis report.
type ReportSummary struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"analysis_time"`
	OverallScore float64   `json:"overall_score"`
	EnergyRatio  float64   `json:"energy_ratio"`
	Fallback     bool      `json:"fallback"`
	Error        string    `json:"error,omitempty"`
}

// SaveReport stores rep. Reports are immutable: saving an ID that already
// exists fails.
func (db *DB) SaveReport(ctx context.Context, rep *swing.AnalysisReport) error {
	if rep.ID == "" || rep.SessionID == "" {
		return fmt.Errorf("report requires id and session_id")
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO analysis_reports (
			report_id, session_id, created_unix_nanos, overall_score,
			energy_ratio, fallback, error, report_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.SessionID, toUnixNanos(rep.CreatedAt), rep.Summary.Overall,
		rep.EnergyRatio, rep.Fallback, rep.Error, string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", rep.ID, err)
	}
	return nil
}

// LatestReport returns the newest report for a session or ErrReportNotFound.
func (db *DB) LatestReport(ctx context.Context, sessionID string) (*swing.AnalysisReport, error) {
	var body string
	err := db.QueryRowContext(ctx, `
		SELECT report_json FROM analysis_reports
		WHERE session_id = ?
		ORDER BY created_unix_nanos DESC, rowid DESC
		LIMIT 1`, sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrReportNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	var rep swing.AnalysisReport
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &rep, nil
}

// ListReports returns report summaries newest first. An empty sessionID
// lists across sessions; limit <= 0 defaults to 50.
func (db *DB) ListReports(ctx context.Context, sessionID string, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT report_id, session_id, created_unix_nanos, overall_score,
		energy_ratio, fallback, error FROM analysis_reports`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_unix_nanos DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var (
			s       ReportSummary
			created int64
		)
		if err := rows.Scan(&s.ID, &s.SessionID, &created, &s.OverallScore, &s.EnergyRatio, &s.Fallback, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		s.CreatedAt = fromUnixNanos(created)
		out = append(out, s)
	}
	return out, rows.Err()
}
