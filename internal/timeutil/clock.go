// Package timeutil lets the session cache, analysis worker, health checks
// and live hub run against a clock that tests step by hand.
package timeutil

import (
	"slices"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) NewTicker(d time.Duration) Ticker { return wallTicker{time.NewTicker(d)} }

type wallTicker struct{ *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.Ticker.C }

// MockClock only moves when told to. Its tickers fire at most once per
// Advance, and a tick nobody has read yet swallows the next one.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*MockTicker
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) Since(t time.Time) time.Duration { return m.Now().Sub(t) }

// Set jumps to t. Tickers are left alone.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	for _, tk := range m.pending {
		if m.now.Before(tk.due) {
			continue
		}
		select {
		case tk.ch <- m.now:
		default:
		}
		tk.due = m.now.Add(tk.every)
	}
}

func (m *MockClock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	tk := &MockTicker{clock: m, ch: make(chan time.Time, 1), every: d, due: m.now.Add(d)}
	m.pending = append(m.pending, tk)
	return tk
}

func (m *MockClock) drop(tk *MockTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = slices.DeleteFunc(m.pending, func(p *MockTicker) bool { return p == tk })
}

// MockTicker is created by MockClock.NewTicker. Its schedule is guarded
// by the owning clock's lock.
type MockTicker struct {
	clock *MockClock
	ch    chan time.Time
	every time.Duration
	due   time.Time
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() { t.clock.drop(t) }
