package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStandardClient(t *testing.T) {
	custom := &http.Client{}
	assert.Same(t, custom, NewStandardClient(custom))
	assert.Same(t, http.DefaultClient, NewStandardClient(nil))
}

func TestPostJSON_AgainstNode(t *testing.T) {
	var got map[string]string
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if r.URL.Path == "/busy" {
			http.Error(w, "collecting", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer node.Close()

	ctx := context.Background()
	require.NoError(t, PostJSON(ctx, node.Client(), node.URL+"/start_collection", map[string]string{"command": "start"}))
	assert.Equal(t, "start", got["command"])

	err := PostJSON(ctx, node.Client(), node.URL+"/busy", map[string]string{"command": "start"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.Equal(t, "collecting", se.Body)
}

func TestPostJSON_QueuedReplies(t *testing.T) {
	mock := NewMockHTTPClient().
		AddResponse(http.StatusOK, "").
		AddResponse(http.StatusServiceUnavailable, "").
		AddErrorResponse(errors.New("connection refused"))

	ctx := context.Background()
	const url = "http://wrist.local/stop_collection"
	require.NoError(t, PostJSON(ctx, mock, url, map[string]string{"command": "stop"}))
	assert.EqualError(t, PostJSON(ctx, mock, url, nil), "post "+url+": status 503")
	assert.ErrorContains(t, PostJSON(ctx, mock, url, nil), "connection refused")
	// queue drained
	assert.NoError(t, PostJSON(ctx, mock, url, nil))

	require.Equal(t, 4, mock.RequestCount())
	req, body := mock.GetRequest(0)
	assert.Equal(t, "wrist.local", req.URL.Host)
	assert.JSONEq(t, `{"command":"stop"}`, string(body))
	req, _ = mock.GetRequest(9)
	assert.Nil(t, req)
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient().AddResponse(http.StatusTeapot, "")
	mock.DoFunc = func(*http.Request) (*http.Response, error) { return nil, errors.New("custom") }

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	_, err := mock.Do(req)
	assert.EqualError(t, err, "custom")
	assert.Equal(t, 1, mock.RequestCount())
}
