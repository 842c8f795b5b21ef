package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swing.report/internal/serialmux"
	"github.com/banshee-data/swing.report/internal/testutil"
)

// stubMuxFactory hands out recording muxes and remembers what it opened.
type stubMuxFactory struct {
	mu     sync.Mutex
	opened []string
	muxes  []*recordingMux
	err    error
}

func (f *stubMuxFactory) open(path string, opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.opened = append(f.opened, path)
	m := newRecordingMux()
	f.muxes = append(f.muxes, m)
	return m, nil
}

func TestSerialPortManagerSubscribe(t *testing.T) {
	manager := NewSerialPortManager(serialmux.NewDisabledSerialMux(), SerialConfigSnapshot{PortPath: "/dev/ttyUSB0"}, nil)
	defer manager.Close()

	id, ch := manager.Subscribe()
	require.NotEmpty(t, id)
	require.NotNil(t, ch)

	select {
	case <-ch:
		t.Error("channel should not be closed immediately")
	case <-time.After(10 * time.Millisecond):
	}

	manager.Unsubscribe(id)
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(100 * time.Millisecond):
		t.Error("channel should be closed immediately after unsubscribe")
	}
}

func TestSerialPortManagerForwardsLines(t *testing.T) {
	mux := serialmux.NewReplaySerialMux([][]byte{[]byte(probeReading)}, 5*time.Millisecond)
	manager := NewSerialPortManager(mux, SerialConfigSnapshot{PortPath: "/dev/ttyUSB0"}, nil)
	defer manager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Monitor(ctx)

	_, ch := manager.Subscribe()
	select {
	case line := <-ch:
		assert.Equal(t, probeReading, line)
	case <-time.After(2 * time.Second):
		t.Fatal("no line forwarded from the mux")
	}
}

func TestSerialPortManagerSendCommand(t *testing.T) {
	mux := newRecordingMux()
	manager := NewSerialPortManager(mux, SerialConfigSnapshot{}, nil)

	require.NoError(t, manager.SendCommand("STATUS"))
	require.NoError(t, manager.Initialize())
	assert.Equal(t, []string{"STATUS"}, mux.Commands())
	assert.Equal(t, SerialConfigSnapshot{}, manager.Snapshot())

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close(), "close is idempotent")
	assert.Error(t, manager.SendCommand("STATUS"))
	assert.Error(t, manager.Initialize())

	id, ch := manager.Subscribe()
	assert.Empty(t, id)
	_, ok := <-ch
	assert.False(t, ok, "subscribe after close returns a closed channel")
}

func TestSerialPortManagerNilMux(t *testing.T) {
	manager := NewSerialPortManager(nil, SerialConfigSnapshot{}, nil)
	defer manager.Close()

	assert.EqualError(t, manager.SendCommand("STATUS"), "serial mux unavailable")
	assert.Nil(t, manager.CurrentMux())
}

func TestSerialPortManagerReloadConfig(t *testing.T) {
	initial := newRecordingMux()
	factory := &stubMuxFactory{}
	manager := NewSerialPortManager(initial, SerialConfigSnapshot{PortPath: "/dev/ttyUSB0", Source: "flag"}, factory.open)
	defer manager.Close()
	ctx := context.Background()

	// same port, default options: nothing to do
	res, err := manager.ReloadConfig(ctx, SerialReloadRequest{PortPath: "/dev/ttyUSB0"})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "already active")
	assert.Empty(t, factory.opened)

	req := SerialReloadRequest{PortPath: "/dev/ttyACM0"}
	req.BaudRate = 9600
	res, err = manager.ReloadConfig(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Config)
	assert.Equal(t, "/dev/ttyACM0", res.Config.PortPath)
	assert.Equal(t, "api", res.Config.Source)
	assert.Equal(t, 9600, res.Config.Options.BaudRate)
	assert.Equal(t, []string{"/dev/ttyACM0"}, factory.opened)

	require.Len(t, factory.muxes, 1)
	assert.Same(t, factory.muxes[0], manager.CurrentMux())
	require.NoError(t, manager.SendCommand("STATUS"))
	assert.Equal(t, []string{"STATUS"}, factory.muxes[0].Commands())
	assert.Empty(t, initial.Commands())
}

func TestSerialPortManagerReloadErrors(t *testing.T) {
	ctx := context.Background()

	noFactory := NewSerialPortManager(nil, SerialConfigSnapshot{}, nil)
	defer noFactory.Close()
	_, err := noFactory.ReloadConfig(ctx, SerialReloadRequest{PortPath: "/dev/ttyUSB0"})
	assert.Error(t, err)

	factory := &stubMuxFactory{err: errors.New("no such file or directory")}
	manager := NewSerialPortManager(newRecordingMux(), SerialConfigSnapshot{PortPath: "/dev/ttyUSB0"}, factory.open)
	defer manager.Close()

	_, err = manager.ReloadConfig(ctx, SerialReloadRequest{})
	assert.EqualError(t, err, "port_path is required")

	bad := SerialReloadRequest{PortPath: "/dev/ttyUSB1"}
	bad.DataBits = 9
	_, err = manager.ReloadConfig(ctx, bad)
	assert.ErrorContains(t, err, "invalid serial configuration")

	_, err = manager.ReloadConfig(ctx, SerialReloadRequest{PortPath: "/dev/ttyUSB1"})
	assert.ErrorContains(t, err, "failed to open serial port")
	assert.Nil(t, manager.CurrentMux(), "the old mux was closed before opening")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = manager.ReloadConfig(cancelled, SerialReloadRequest{PortPath: "/dev/ttyUSB1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleSerialReload(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(testutil.NewTestRequest(http.MethodGet, "/api/serial/reload"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)

	factory := &stubMuxFactory{}
	mgr := NewSerialPortManager(newRecordingMux(), SerialConfigSnapshot{PortPath: "/dev/ttyUSB0", Source: "flag"}, factory.open)
	t.Cleanup(func() { mgr.Close() })
	ts.m = mgr

	rec = ts.do(testutil.NewTestRequest(http.MethodGet, "/api/serial/reload"))
	require.Equal(t, http.StatusOK, rec.Code)
	var got SerialReloadResult
	testutil.DecodeJSON(t, rec, &got)
	assert.True(t, got.Success)
	require.NotNil(t, got.Config)
	assert.Equal(t, "flag", got.Config.Source)

	rec = ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/serial/reload", map[string]any{"port_path": "/dev/ttyACM0"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, "/dev/ttyACM0", got.Config.PortPath)

	rec = ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/serial/reload", map[string]any{}))
	testutil.AssertStatusCode(t, rec.Code, http.StatusInternalServerError)

	rec = ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/serial/reload", "{"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = ts.do(testutil.NewTestRequest(http.MethodDelete, "/api/serial/reload"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}
