package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swing.report/internal/swing"
)

func TestRecordReadingPromotesCalibratingSession(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := newTestSession(t, db)

	r := swingReadings(s.ID, swing.RoleWaist, testStart, 1)[0]
	require.NoError(t, db.RecordReading(ctx, &r))
	assert.NotZero(t, r.ID)
	assert.False(t, r.ReceivedAt.IsZero())

	stored, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCollecting, stored.Status)
}

func TestRecordReadingRejections(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := newTestSession(t, db)

	r := swingReadings("missing", swing.RoleWaist, testStart, 1)[0]
	assert.True(t, errors.Is(db.RecordReading(ctx, &r), ErrSessionNotFound))

	r = swingReadings(s.ID, "ankle", testStart, 1)[0]
	assert.True(t, errors.Is(db.RecordReading(ctx, &r), swing.ErrUnknownRole))

	_, err := db.EndSession(ctx, s.ID)
	require.NoError(t, err)
	r = swingReadings(s.ID, swing.RoleWaist, testStart, 1)[0]
	assert.True(t, errors.Is(db.RecordReading(ctx, &r), ErrSessionNotActive))
}

func TestRecordReadingWithoutSession(t *testing.T) {
	db := setupTestDB(t)
	r := swingReadings("", swing.RoleWrist, testStart, 1)[0]
	require.NoError(t, db.RecordReading(context.Background(), &r))
	assert.NotZero(t, r.ID)
}

func TestRecordReadingsPerItemResults(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := newTestSession(t, db)

	batch := swingReadings(s.ID, swing.RoleWaist, testStart, 3)
	batch[1].Role = "ankle"
	batch = append(batch, swingReadings("missing", swing.RoleWrist, testStart, 1)...)

	results, err := db.RecordReadings(ctx, batch)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results[0].OK())
	assert.NotZero(t, results[0].ID)
	assert.False(t, results[1].OK())
	assert.Contains(t, results[1].Error, "unknown sensor role")
	assert.True(t, results[2].OK())
	assert.False(t, results[3].OK())
	assert.Contains(t, results[3].Error, "session not found")
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}

	stats, err := db.ReadingStats(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
}

func TestSessionReadingsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := newTestSession(t, db)

	batch := swingReadings(s.ID, swing.RoleShoulder, testStart, 4)
	resolved := testStart.Add(15 * time.Millisecond)
	batch[2].ResolvedTime = &resolved
	_, err := db.RecordReadings(ctx, batch)
	require.NoError(t, err)

	got, err := db.SessionReadings(ctx, s.ID)
	require.NoError(t, err)

	want := make([]swing.SensorReading, len(batch))
	for i := range batch {
		want[i] = batch[i].SensorReading
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("readings mismatch (-want +got):\n%s", diff)
	}
}

func TestReadingStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := newTestSession(t, db)

	batch := append(swingReadings(s.ID, swing.RoleWaist, testStart, 5), swingReadings(s.ID, swing.RoleWrist, testStart, 2)...)
	first := testStart.Add(time.Second)
	last := testStart.Add(3 * time.Second)
	batch[0].ResolvedTime = &last
	batch[6].ResolvedTime = &first
	_, err := db.RecordReadings(ctx, batch)
	require.NoError(t, err)

	stats, err := db.ReadingStats(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 2, stats.ActiveRoles())
	assert.Equal(t, 5, stats.ByRole[swing.RoleWaist])
	assert.Equal(t, 2, stats.ByRole[swing.RoleWrist])
	require.NotNil(t, stats.FirstResolved)
	require.NotNil(t, stats.LastResolved)
	assert.True(t, stats.FirstResolved.Equal(first))
	assert.True(t, stats.LastResolved.Equal(last))

	empty, err := db.ReadingStats(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Nil(t, empty.FirstResolved)
}

func TestRecordReadingTouchesDevice(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertDevice(ctx, &Device{Code: "dev-waist", SensorType: "waist"}))

	r := swingReadings("", swing.RoleWaist, testStart, 1)[0]
	r.ReceivedAt = testStart
	require.NoError(t, db.RecordReading(ctx, &r))

	d, err := db.GetDevice(ctx, "dev-waist")
	require.NoError(t, err)
	require.NotNil(t, d.LastSeen)
	assert.True(t, d.LastSeen.Equal(testStart))
}
