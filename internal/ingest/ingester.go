package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/swing.report/internal/monitoring"
	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/timeutil"
)

var logf = monitoring.Component("ingest")

// SessionInfo is what the ingester needs to know about the session a
// reading belongs to.
type SessionInfo struct {
	ID       string
	Start    time.Time
	Location *time.Location
}

// Sink stores one reading. An empty sessionID stores an unattached reading.
type Sink interface {
	RecordReading(ctx context.Context, sessionID, device string, r swing.SensorReading) error
}

// SessionResolver looks up the session a packet belongs to. An empty id
// asks for the active session; (nil, nil) means there is none.
type SessionResolver interface {
	Session(ctx context.Context, id string) (*SessionInfo, error)
}

// DefaultSessionCacheTTL bounds how long the active session lookup is
// reused between packets.
const DefaultSessionCacheTTL = time.Second

// Ingester decodes packets, resolves their session and timestamp and hands
// them to the sink.
type Ingester struct {
	Sink     Sink
	Sessions SessionResolver
	Decoder  Decoder
	// RolloverThreshold is passed to the timestamp codec.
	RolloverThreshold time.Duration
	Clock             timeutil.Clock
	CacheTTL          time.Duration
	// OnRecorded is called after every stored reading.
	OnRecorded func(sessionID string, r swing.SensorReading)

	received atomic.Int64
	recorded atomic.Int64
	rejected atomic.Int64

	mu        sync.Mutex
	lastError string
	lastSeen  time.Time
	active    *SessionInfo
	activeAt  time.Time
}

func New(sink Sink, sessions SessionResolver) *Ingester {
	return &Ingester{
		Sink:     sink,
		Sessions: sessions,
		Clock:    timeutil.RealClock{},
		CacheTTL: DefaultSessionCacheTTL,
	}
}

// Stats is a snapshot of the ingest counters.
type Stats struct {
	Received  int64      `json:"received"`
	Recorded  int64      `json:"recorded"`
	Rejected  int64      `json:"rejected"`
	LastError string     `json:"last_error,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

func (in *Ingester) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	s := Stats{
		Received:  in.received.Load(),
		Recorded:  in.recorded.Load(),
		Rejected:  in.rejected.Load(),
		LastError: in.lastError,
	}
	if !in.lastSeen.IsZero() {
		t := in.lastSeen
		s.LastSeen = &t
	}
	return s
}

// HandleLine decodes and stores one packet.
func (in *Ingester) HandleLine(ctx context.Context, line []byte) error {
	in.received.Add(1)
	env, err := in.Decoder.Decode(line)
	if err != nil {
		return in.reject(err)
	}
	return in.record(ctx, env)
}

// Record stores an already decoded packet.
func (in *Ingester) Record(ctx context.Context, env Envelope) error {
	in.received.Add(1)
	return in.record(ctx, env)
}

func (in *Ingester) record(ctx context.Context, env Envelope) error {
	info, err := in.session(ctx, env.SessionID)
	if err != nil {
		return in.reject(err)
	}

	r := env.Reading
	sessionID := ""
	if info != nil {
		sessionID = info.ID
		codec := swing.NewCodec(info.Location, in.RolloverThreshold)
		if t, ok := codec.Resolve(r, info.Start); ok {
			t = t.UTC()
			r.ResolvedTime = &t
		}
	}

	if err := in.Sink.RecordReading(ctx, sessionID, env.Device, r); err != nil {
		// the cached session may have just ended
		in.invalidate()
		return in.reject(err)
	}
	in.recorded.Add(1)
	in.mu.Lock()
	in.lastSeen = in.Clock.Now()
	in.mu.Unlock()

	if in.OnRecorded != nil {
		in.OnRecorded(sessionID, r)
	}
	return nil
}

func (in *Ingester) reject(err error) error {
	in.rejected.Add(1)
	in.mu.Lock()
	in.lastError = err.Error()
	in.mu.Unlock()
	return err
}

// session resolves an explicit session id directly and the active session
// through a short-lived cache.
func (in *Ingester) session(ctx context.Context, id string) (*SessionInfo, error) {
	if in.Sessions == nil {
		return nil, nil
	}
	if id != "" {
		return in.Sessions.Session(ctx, id)
	}

	in.mu.Lock()
	if in.active != nil && in.Clock.Since(in.activeAt) < in.CacheTTL {
		info := in.active
		in.mu.Unlock()
		return info, nil
	}
	in.mu.Unlock()

	info, err := in.Sessions.Session(ctx, "")
	if err != nil {
		return nil, err
	}
	in.mu.Lock()
	in.active = info
	in.activeAt = in.Clock.Now()
	in.mu.Unlock()
	return info, nil
}

// Invalidate drops the cached active session, for use when a session starts
// or ends.
func (in *Ingester) Invalidate() { in.invalidate() }

func (in *Ingester) invalidate() {
	in.mu.Lock()
	in.active = nil
	in.mu.Unlock()
}
