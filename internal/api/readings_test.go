package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/testutil"
)

func TestUploadReading(t *testing.T) {
	ts := setupTestServer(t)
	started := ts.startSession(t, map[string]string{"timezone": "UTC"})

	packet := map[string]any{
		"device":      "S1",
		"sensor_type": "shoulder",
		"timestamp":   swing.EncodePacked(started.StartTime.Add(time.Second)),
		"acc":         []float64{3, 4, 0},
		"gyro":        []float64{0, 6, 8},
		"angle":       []float64{10, 20, 30},
	}
	rec := ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/readings", packet))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Msg        string         `json:"msg"`
		DeviceCode string         `json:"device_code"`
		SensorType string         `json:"sensor_type"`
		SessionID  string         `json:"session_id"`
		Summary    readingSummary `json:"sensor_data_summary"`
	}
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "data upload success", resp.Msg)
	assert.Equal(t, "S1", resp.DeviceCode)
	assert.Equal(t, "shoulder", resp.SensorType)
	assert.Equal(t, readingSummary{AccMagnitude: 5, GyroMagnitude: 10}, resp.Summary)

	readings, err := ts.DB.SessionReadings(t.Context(), started.SessionID)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, swing.RoleShoulder, readings[0].Role)
	require.NotNil(t, readings[0].ResolvedTime)

	sess, err := ts.DB.GetSession(t.Context(), started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCollecting, sess.Status, "first reading starts collection")
}

func TestUploadReadingErrors(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"unknown role", `{"sensor_type":"knee","timestamp":"120000000","acc":[0,0,1],"gyro":[0,0,1],"angle":[0,0,0]}`, http.StatusBadRequest},
		{"long vector", `{"sensor_type":"wrist","timestamp":"120000000","acc":[0,1,2,3],"gyro":[0,0,1],"angle":[0,0,0]}`, http.StatusBadRequest},
		{"unknown session", `{"sensor_type":"wrist","session_id":"missing","timestamp":"120000000","acc":[0,0,1],"gyro":[0,0,1],"angle":[0,0,0]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/readings", tt.body))
			testutil.AssertStatusCode(t, rec.Code, tt.want)
		})
	}

	rec := ts.do(testutil.NewTestRequest(http.MethodGet, "/api/readings"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestUploadReadingEndedSession(t *testing.T) {
	ts := setupTestServer(t)
	started := ts.startSession(t, nil)
	_, err := ts.DB.EndSession(t.Context(), started.SessionID)
	require.NoError(t, err)

	body := `{"sensor_type":"wrist","session_id":"` + started.SessionID + `","timestamp":"120000000","acc":[0,0,1],"gyro":[0,0,1],"angle":[0,0,0]}`
	rec := ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/readings", body))
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)
}

func TestUploadBatch(t *testing.T) {
	ts := setupTestServer(t)
	started := ts.startSession(t, map[string]string{"timezone": "UTC"})

	req := waistBatch(t, started.SessionID, started.StartTime, 3)
	req.BatchData = append(req.BatchData,
		json.RawMessage(`{"timestamp":"120000000","acc":[0,0,0,0],"gyro":[0,0,1],"angle":[0,0,0]}`),
		json.RawMessage(`"not an object"`),
	)
	rec := ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/readings/batch", req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp batchResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "batch upload completed", resp.Msg)
	assert.Equal(t, started.SessionID, resp.SessionID)
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, 3, resp.Successful)
	assert.Equal(t, 2, resp.Failed)
	require.Len(t, resp.Results, 5)
	for i, res := range resp.Results {
		assert.Equal(t, i, res.Index)
		if i < 3 {
			assert.True(t, res.OK(), "item %d: %s", i, res.Error)
			assert.NotZero(t, res.ID)
		} else {
			assert.False(t, res.OK(), "item %d", i)
		}
	}

	stats, err := ts.DB.ReadingStats(t.Context(), started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.ByRole[swing.RoleWaist])
}

func TestUploadBatchUsesActiveSession(t *testing.T) {
	ts := setupTestServer(t)
	started := ts.startSession(t, nil)

	req := waistBatch(t, "", started.StartTime, 2)
	req.DeviceCode = ""
	rec := ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/readings/batch", req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp batchResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, started.SessionID, resp.SessionID)
	assert.Equal(t, 2, resp.Successful)
}

func TestUploadBatchErrors(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"missing batch_data", map[string]any{"sensor_type": "waist"}, http.StatusBadRequest},
		{"unknown role", map[string]any{"sensor_type": "elbow", "batch_data": []any{}}, http.StatusBadRequest},
		{"unknown session", map[string]any{"sensor_type": "waist", "session_id": "missing", "batch_data": []any{}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(testutil.NewJSONRequest(t, http.MethodPost, "/api/readings/batch", tt.body))
			testutil.AssertStatusCode(t, rec.Code, tt.want)
		})
	}
}
