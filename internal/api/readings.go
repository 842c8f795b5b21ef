package api

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/httputil"
	"github.com/banshee-data/swing.report/internal/ingest"
	"github.com/banshee-data/swing.report/internal/swing"
)

type readingSummary struct {
	AccMagnitude  float64 `json:"acc_magnitude"`
	GyroMagnitude float64 `json:"gyro_magnitude"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// uploadReading stores one packet in the same JSON form the receiver hub
// emits. Without a session_id the reading goes to the active session.
func (s *Server) uploadReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	env, err := s.Ingester.Decoder.Decode(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.Ingester.Record(r.Context(), env); err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"msg":         "data upload success",
		"device_code": env.Device,
		"sensor_type": env.Reading.Role,
		"session_id":  env.SessionID,
		"timestamp":   env.Reading.Timestamp,
		"sensor_data_summary": readingSummary{
			AccMagnitude:  round2(env.Reading.Acc.Norm()),
			GyroMagnitude: round2(env.Reading.Gyro.Norm()),
		},
	})
}

type batchRequest struct {
	DeviceCode string            `json:"device_code"`
	SensorType string            `json:"sensor_type"`
	SessionID  string            `json:"session_id"`
	BatchData  []json.RawMessage `json:"batch_data"`
}

type batchItem struct {
	Timestamp swing.RawTimestamp `json:"timestamp"`
}

type batchResponse struct {
	Msg        string             `json:"msg"`
	SessionID  string             `json:"session_id,omitempty"`
	Total      int                `json:"total_items"`
	Successful int                `json:"successful_items"`
	Failed     int                `json:"failed_items"`
	Results    []db.ReadingResult `json:"results"`
}

// uploadBatch stores many samples of one sensor in a single transaction.
// Items that fail to decode or validate are reported per index.
func (s *Server) uploadBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req batchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.BatchData == nil {
		httputil.BadRequest(w, "batch_data must be a JSON array")
		return
	}
	role, err := swing.ParseRole(req.SensorType)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	device := strings.TrimSpace(req.DeviceCode)
	if device == "" {
		device = string(role)
	}

	var info *ingest.SessionInfo
	if s.Ingester.Sessions != nil {
		if info, err = s.Ingester.Sessions.Session(r.Context(), strings.TrimSpace(req.SessionID)); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	var codec swing.Codec
	sessionID := ""
	if info != nil {
		sessionID = info.ID
		codec = swing.NewCodec(info.Location, s.Ingester.RolloverThreshold)
	}

	results := make([]db.ReadingResult, len(req.BatchData))
	var (
		readings []db.Reading
		indexes  []int
	)
	for i, raw := range req.BatchData {
		results[i].Index = i
		reading, err := decodeBatchItem(s.Ingester.Decoder, role, raw)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		if info != nil {
			if t, ok := codec.Resolve(reading, info.Start); ok {
				t = t.UTC()
				reading.ResolvedTime = &t
			}
		}
		readings = append(readings, db.Reading{SessionID: sessionID, DeviceCode: device, SensorReading: reading})
		indexes = append(indexes, i)
	}

	stored, err := s.db.RecordReadings(r.Context(), readings)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp := batchResponse{Msg: "batch upload completed", SessionID: sessionID, Total: len(results)}
	var last *swing.SensorReading
	for j, res := range stored {
		res.Index = indexes[j]
		results[res.Index] = res
		if res.OK() {
			last = &readings[j].SensorReading
		}
	}
	for _, res := range results {
		if res.OK() {
			resp.Successful++
		} else {
			resp.Failed++
		}
	}
	resp.Results = results
	if last != nil {
		s.Live.ReadingRecorded(sessionID, *last)
	}
	httputil.WriteJSONOK(w, resp)
}

func decodeBatchItem(d ingest.Decoder, role swing.SensorRole, raw json.RawMessage) (swing.SensorReading, error) {
	var item batchItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return swing.SensorReading{}, fmt.Errorf("%w: %v", swing.ErrInvalidPayload, err)
	}
	payload, err := d.DecodePayload(raw)
	if err != nil {
		return swing.SensorReading{}, err
	}
	return payload.Reading(role, item.Timestamp), nil
}
