package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/httputil"
)

func TestDeviceURL(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"10.0.0.5", "http://10.0.0.5/start_collection"},
		{"10.0.0.5:8080", "http://10.0.0.5:8080/start_collection"},
		{"http://node.local/", "http://node.local/start_collection"},
		{"https://node.local", "https://node.local/start_collection"},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, deviceURL(tt.address, CommandStart.path()))
		})
	}
	assert.Equal(t, "/stop_collection", CommandStop.path())
}

func TestDeviceNotifierRegister(t *testing.T) {
	n := NewDeviceNotifier(httputil.NewMockHTTPClient())
	n.Register("W1", "10.0.0.1")
	n.Register("A1", " 10.0.0.2 ")
	assert.Equal(t, []string{"A1", "W1"}, n.Devices())

	n.Register("W1", "  ")
	assert.Equal(t, []string{"A1"}, n.Devices())

	n.Load([]db.Device{{Code: "R1", Address: "10.0.0.3"}, {Code: "S1"}})
	assert.Equal(t, []string{"A1", "R1"}, n.Devices())
}

func TestDeviceNotifierNotify(t *testing.T) {
	client := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"ok":true}`).
		AddErrorResponse(errors.New("connection refused")).
		AddResponse(http.StatusServiceUnavailable, "busy")
	n := NewDeviceNotifier(client)
	n.Register("A1", "10.0.0.1")
	n.Register("B1", "10.0.0.2")
	n.Register("C1", "10.0.0.3")

	got := n.Notify(context.Background(), CommandStop, "sess-1")
	require.Len(t, got, 3)
	assert.Equal(t, Notification{DeviceCode: "A1", Address: "10.0.0.1"}, got[0])
	assert.Contains(t, got[1].Error, "connection refused")
	assert.NotEmpty(t, got[2].Error, "non-2xx is a failure")

	require.Equal(t, 3, client.RequestCount())
	for i, code := range []string{"A1", "B1", "C1"} {
		req, body := client.GetRequest(i)
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/stop_collection", req.URL.Path)
		var payload commandPayload
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, commandPayload{Command: CommandStop, SessionID: "sess-1", DeviceCode: code}, payload)
	}
}

func TestDeviceNotifierNoDevices(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	n := NewDeviceNotifier(client)
	assert.Empty(t, n.Notify(context.Background(), CommandStart, "sess-1"))
	assert.Equal(t, 0, client.RequestCount())
}
