package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/swing.report/internal/swing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	fname := filepath.Join(t.TempDir(), strings.ReplaceAll(t.Name(), "/", "_")+".db")

	db, err := NewDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		_ = os.Remove(fname)
		_ = os.Remove(fname + "-shm")
		_ = os.Remove(fname + "-wal")
	})
	return db
}

var testStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// newTestSession creates a calibrating session starting at testStart.
func newTestSession(t *testing.T, db *DB) *Session {
	t.Helper()
	s := &Session{DeviceGroup: "court-1", StartTime: testStart}
	if err := db.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return s
}

// swingReadings returns n samples of a 1 Hz square swing on role, sampled
// every 10ms from start, with packed device timestamps.
func swingReadings(sessionID string, role swing.SensorRole, start time.Time, n int) []Reading {
	out := make([]Reading, n)
	for i := range out {
		at := start.Add(time.Duration(i) * 10 * time.Millisecond)
		v := 40.0
		if (i/50)%2 == 1 {
			v = -40
		}
		out[i] = Reading{
			SessionID:  sessionID,
			DeviceCode: "dev-" + string(role),
			SensorReading: swing.SensorReading{
				Role:      role,
				Acc:       swing.Vec3{0, 0, 1},
				Gyro:      swing.Vec3{0, 0, v},
				Angle:     swing.Vec3{float64(i % 30), float64(i % 90), float64(i % 45)},
				Timestamp: swing.RawTimestamp(swing.EncodePacked(at)),
			},
		}
	}
	return out
}

func TestPragmasApplied(t *testing.T) {
	db := setupTestDB(t)

	checks := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"synchronous", "1"},
		{"temp_store", "2"},
		{"foreign_keys", "1"},
	}
	for _, c := range checks {
		var got string
		if err := db.QueryRow("PRAGMA " + c.pragma).Scan(&got); err != nil {
			t.Fatalf("failed to query %s: %v", c.pragma, err)
		}
		if got != c.want {
			t.Errorf("PRAGMA %s = %s, want %s", c.pragma, got, c.want)
		}
	}
}

func TestPragmasAppliedToExistingDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.db")

	db1, err := NewDB(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	db1.Close()

	db2, err := NewDB(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db2.Close()

	var journalMode string
	if err := db2.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal after reopening, got %s", journalMode)
	}
	if db2.Path() != path {
		t.Errorf("Path() = %q, want %q", db2.Path(), path)
	}
}

func TestMigrationsVersionAndRollback(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Fatalf("version = %d dirty = %v, want 2 clean", version, dirty)
	}

	if err := db.MigrateDown(MigrationsFS()); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if _, err := db.ListDevices(context.Background()); err == nil {
		t.Error("expected devices table to be gone after rollback")
	}
	version, _, _ = db.MigrateVersion(MigrationsFS())
	if version != 1 {
		t.Errorf("version after rollback = %d, want 1", version)
	}

	if err := db.MigrateUp(MigrationsFS()); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if _, err := db.ListDevices(context.Background()); err != nil {
		t.Errorf("devices table missing after re-apply: %v", err)
	}
	// Up at the latest version is a no-op.
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		t.Errorf("second MigrateUp failed: %v", err)
	}
}
