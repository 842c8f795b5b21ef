package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/swing.report/internal/httputil"
	"github.com/banshee-data/swing.report/internal/serialmux"
)

// SerialMuxFactory opens a receiver hub mux for a port path and options.
type SerialMuxFactory func(path string, opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error)

// SerialConfigSnapshot describes the port the running hub mux uses.
type SerialConfigSnapshot struct {
	PortPath string                `json:"port_path"`
	Source   string                `json:"source"`
	Options  serialmux.PortOptions `json:"options"`
}

// SerialReloadRequest is the body of POST /api/serial/reload.
type SerialReloadRequest struct {
	PortPath string `json:"port_path"`
	serialmux.PortOptions
}

type SerialReloadResult struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Config  *SerialConfigSnapshot `json:"config,omitempty"`
}

var (
	errManagerClosed  = errors.New("serial manager is closed")
	errMuxUnavailable = errors.New("serial mux unavailable")
)

// monitorRetry is how long Monitor waits before re-entering a mux whose
// Monitor returned while it is still current.
const monitorRetry = 500 * time.Millisecond

// SerialPortManager lets the hub port be swapped while the server runs,
// for example after the hub is replugged under another path. It is itself
// a SerialMuxInterface. Subscribers attach to the manager and keep
// receiving lines across reloads.
type SerialPortManager struct {
	factory  SerialMuxFactory
	reloadMu sync.Mutex

	mu      sync.RWMutex
	current serialmux.SerialMuxInterface
	config  *SerialConfigSnapshot
	closed  bool
	// changed is closed and replaced each time current changes.
	changed chan struct{}

	lines serialmux.Fanout
}

// NewSerialPortManager starts relaying lines from initial, which may be
// nil. A snapshot without a port path means nothing has been applied yet.
func NewSerialPortManager(initial serialmux.SerialMuxInterface, snapshot SerialConfigSnapshot, factory SerialMuxFactory) *SerialPortManager {
	m := &SerialPortManager{
		factory: factory,
		current: initial,
		changed: make(chan struct{}),
	}
	if snapshot.PortPath != "" {
		m.config = &snapshot
	}
	go m.relay()
	return m
}

// state returns the current mux together with the channel that signals
// its replacement.
func (m *SerialPortManager) state() (serialmux.SerialMuxInterface, <-chan struct{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.changed, m.closed
}

// swap installs mux and wakes everything waiting on the previous one. The
// caller holds m.mu.
func (m *SerialPortManager) swap(mux serialmux.SerialMuxInterface) serialmux.SerialMuxInterface {
	old := m.current
	m.current = mux
	close(m.changed)
	m.changed = make(chan struct{})
	return old
}

func (m *SerialPortManager) CurrentMux() serialmux.SerialMuxInterface {
	mux, _, _ := m.state()
	return mux
}

// Snapshot returns the applied port configuration, zero when none is.
func (m *SerialPortManager) Snapshot() SerialConfigSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return SerialConfigSnapshot{}
	}
	return *m.config
}

// relay copies the current mux's lines to the manager's subscribers and
// follows each replacement until Close.
func (m *SerialPortManager) relay() {
	for {
		mux, changed, closed := m.state()
		if closed {
			return
		}
		if mux == nil {
			<-changed
			continue
		}
		id, ch := mux.Subscribe()
		m.pump(ch, changed)
		mux.Unsubscribe(id)
	}
}

func (m *SerialPortManager) pump(ch <-chan string, changed <-chan struct{}) {
	for {
		select {
		case <-changed:
			return
		case line, ok := <-ch:
			if !ok {
				// the mux went away on its own; wait for a reload
				<-changed
				return
			}
			m.lines.Publish(line)
		}
	}
}

func (m *SerialPortManager) Subscribe() (string, chan string) { return m.lines.Subscribe() }

func (m *SerialPortManager) Unsubscribe(id string) { m.lines.Unsubscribe(id) }

func (m *SerialPortManager) usable() (serialmux.SerialMuxInterface, error) {
	mux, _, closed := m.state()
	switch {
	case closed:
		return nil, errManagerClosed
	case mux == nil:
		return nil, errMuxUnavailable
	}
	return mux, nil
}

func (m *SerialPortManager) SendCommand(command string) error {
	mux, err := m.usable()
	if err != nil {
		return err
	}
	return mux.SendCommand(command)
}

func (m *SerialPortManager) Initialize() error {
	mux, err := m.usable()
	if err != nil {
		return err
	}
	return mux.Initialize()
}

// Monitor drives whichever mux is current, moving on to the replacement
// after a reload. It returns when ctx ends or the manager is closed.
func (m *SerialPortManager) Monitor(ctx context.Context) error {
	for {
		mux, changed, closed := m.state()
		if closed {
			return nil
		}
		var retry <-chan time.Time
		if mux != nil {
			if err := mux.Monitor(ctx); err != nil && ctx.Err() == nil {
				logf("hub monitor stopped: %v", err)
			}
			retry = time.After(monitorRetry)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-retry:
		}
	}
}

// Close closes the current mux and every subscriber channel.
func (m *SerialPortManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	old := m.swap(nil)
	m.mu.Unlock()

	m.lines.Close()
	if old != nil {
		return old.Close()
	}
	return nil
}

func (m *SerialPortManager) AttachAdminRoutes(mux *http.ServeMux) {
	serialmux.AttachAdminRoutesForMux(mux, m)
}

// ReloadConfig moves the hub to the port in req. The old port is released
// before the new one opens, because a device path can only be held once;
// a failed open therefore leaves the manager without a mux.
func (m *SerialPortManager) ReloadConfig(ctx context.Context, req SerialReloadRequest) (*SerialReloadResult, error) {
	if m.factory == nil {
		return nil, errors.New("serial mux factory not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.PortPath == "" {
		return nil, errors.New("port_path is required")
	}
	opts, err := req.PortOptions.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid serial configuration: %w", err)
	}

	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errManagerClosed
	}
	if m.current != nil && m.config != nil && m.config.PortPath == req.PortPath && m.config.Options.Equal(opts) {
		cfg := *m.config
		m.mu.Unlock()
		return &SerialReloadResult{Success: true, Message: fmt.Sprintf("serial port %s already active", req.PortPath), Config: &cfg}, nil
	}
	old := m.swap(nil)
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logf("closing previous hub port: %v", err)
		}
	}

	next, err := m.factory(req.PortPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", req.PortPath, err)
	}
	if err := next.Initialize(); err != nil {
		next.Close()
		return nil, fmt.Errorf("failed to initialize serial port: %w", err)
	}

	cfg := SerialConfigSnapshot{PortPath: req.PortPath, Source: "api", Options: opts}
	m.mu.Lock()
	m.config = &cfg
	m.swap(next)
	m.mu.Unlock()

	return &SerialReloadResult{Success: true, Message: fmt.Sprintf("reloaded serial port %s", req.PortPath), Config: &cfg}, nil
}

// handleSerialReload serves GET (current port) and POST (switch port) on
// /api/serial/reload.
func (s *Server) handleSerialReload(w http.ResponseWriter, r *http.Request) {
	mgr, ok := s.m.(*SerialPortManager)
	if !ok {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "serial port is not reloadable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg := mgr.Snapshot()
		httputil.WriteJSONOK(w, SerialReloadResult{Success: mgr.CurrentMux() != nil, Config: &cfg})
	case http.MethodPost:
		var req SerialReloadRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		res, err := mgr.ReloadConfig(r.Context(), req)
		if err != nil {
			httputil.WriteJSON(w, http.StatusInternalServerError, SerialReloadResult{Message: err.Error()})
			return
		}
		httputil.WriteJSONOK(w, res)
	default:
		httputil.MethodNotAllowed(w)
	}
}
