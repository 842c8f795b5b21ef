package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/timeutil"
)

type storedReading struct {
	SessionID string
	Device    string
	Reading   swing.SensorReading
}

type fakeSink struct {
	mu   sync.Mutex
	got  []storedReading
	fail error
}

func (s *fakeSink) RecordReading(_ context.Context, sessionID, device string, r swing.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, storedReading{sessionID, device, r})
	return nil
}

func (s *fakeSink) readings() []storedReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storedReading(nil), s.got...)
}

type fakeResolver struct {
	active  *SessionInfo
	byID    map[string]*SessionInfo
	lookups int
}

func (r *fakeResolver) Session(_ context.Context, id string) (*SessionInfo, error) {
	r.lookups++
	if id == "" {
		return r.active, nil
	}
	if s, ok := r.byID[id]; ok {
		return s, nil
	}
	return nil, errors.New("session not found")
}

var sessionStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestIngester(t *testing.T) (*Ingester, *fakeSink, *fakeResolver, *timeutil.MockClock) {
	t.Helper()
	sink := &fakeSink{}
	resolver := &fakeResolver{
		active: &SessionInfo{ID: "active", Start: sessionStart, Location: time.UTC},
		byID:   map[string]*SessionInfo{"s-1": {ID: "s-1", Start: sessionStart, Location: time.UTC}},
	}
	clock := timeutil.NewMockClock(sessionStart)
	in := New(sink, resolver)
	in.Clock = clock
	return in, sink, resolver, clock
}

func TestIngester_HandleLine_ResolvesTimestamp(t *testing.T) {
	in, sink, _, _ := newTestIngester(t)
	var notified []string
	in.OnRecorded = func(sessionID string, _ swing.SensorReading) { notified = append(notified, sessionID) }

	require.NoError(t, in.HandleLine(context.Background(), []byte(wristLine)))

	got := sink.readings()
	require.Len(t, got, 1)
	assert.Equal(t, "s-1", got[0].SessionID)
	assert.Equal(t, "A1", got[0].Device)
	require.NotNil(t, got[0].Reading.ResolvedTime)
	want := time.Date(2024, 3, 1, 10, 15, 30, 250*int(time.Millisecond), time.UTC)
	assert.True(t, want.Equal(*got[0].Reading.ResolvedTime), "resolved %v", got[0].Reading.ResolvedTime)
	assert.Equal(t, []string{"s-1"}, notified)

	stats := in.Stats()
	assert.Equal(t, int64(1), stats.Received)
	assert.Equal(t, int64(1), stats.Recorded)
	assert.Zero(t, stats.Rejected)
	require.NotNil(t, stats.LastSeen)
}

func TestIngester_ActiveSessionCache(t *testing.T) {
	in, sink, resolver, clock := newTestIngester(t)
	line := []byte(`{"sensor_type":"waist","timestamp":"100001000","acc":[0,0,1],"gyro":[0,0,5],"angle":[0,0,0]}`)

	for range 3 {
		require.NoError(t, in.HandleLine(context.Background(), line))
	}
	assert.Equal(t, 1, resolver.lookups)

	clock.Advance(2 * DefaultSessionCacheTTL)
	require.NoError(t, in.HandleLine(context.Background(), line))
	assert.Equal(t, 2, resolver.lookups)

	in.Invalidate()
	require.NoError(t, in.HandleLine(context.Background(), line))
	assert.Equal(t, 3, resolver.lookups)

	for _, r := range sink.readings() {
		assert.Equal(t, "active", r.SessionID)
	}
}

func TestIngester_NoActiveSession(t *testing.T) {
	in, sink, resolver, _ := newTestIngester(t)
	resolver.active = nil

	require.NoError(t, in.HandleLine(context.Background(), []byte(`{"sensor_type":"waist","timestamp":"100001000","acc":[0,0,1],"gyro":[0,0,5],"angle":[0,0,0]}`)))

	got := sink.readings()
	require.Len(t, got, 1)
	assert.Empty(t, got[0].SessionID)
	assert.Nil(t, got[0].Reading.ResolvedTime)
}

func TestIngester_Rejections(t *testing.T) {
	in, sink, _, _ := newTestIngester(t)
	ctx := context.Background()

	assert.Error(t, in.HandleLine(ctx, []byte(`{"sensor_type":"elbow","acc":[0,0,0],"gyro":[0,0,0],"angle":[0,0,0]}`)))
	assert.Error(t, in.HandleLine(ctx, []byte(`{"sensor_type":"waist","session_id":"missing","acc":[0,0,0],"gyro":[0,0,0],"angle":[0,0,0]}`)))

	sink.fail = errors.New("session not active")
	assert.Error(t, in.HandleLine(ctx, []byte(wristLine)))

	stats := in.Stats()
	assert.Equal(t, int64(3), stats.Received)
	assert.Equal(t, int64(3), stats.Rejected)
	assert.Zero(t, stats.Recorded)
	assert.Equal(t, "session not active", stats.LastError)
}

func TestIngester_WithoutResolver(t *testing.T) {
	sink := &fakeSink{}
	in := New(sink, nil)
	require.NoError(t, in.HandleLine(context.Background(), []byte(wristLine)))
	require.Len(t, sink.readings(), 1)
	assert.Empty(t, sink.readings()[0].SessionID)
}
