package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/httputil"
	"github.com/banshee-data/swing.report/internal/swing"
)

type startSessionRequest struct {
	DeviceGroup string `json:"device_group_code"`
	Timezone    string `json:"timezone"`
}

type startSessionResponse struct {
	Msg                string           `json:"msg"`
	SessionID          string           `json:"session_id"`
	Status             db.SessionStatus `json:"status"`
	Timezone           string           `json:"timezone"`
	StartTime          time.Time        `json:"start_time"`
	CalibrationCommand string           `json:"calibration_command,omitempty"`
	Notified           []Notification   `json:"notified,omitempty"`
}

// CalibrationCommand is the command that puts a device group into
// calibration at the start of a session.
func CalibrationCommand(group string) string {
	if group == "" {
		return ""
	}
	return "CALIBRATE_" + group
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req startSessionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	tz, err := s.timezone(req.Timezone)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	sess := &db.Session{DeviceGroup: strings.TrimSpace(req.DeviceGroup), Timezone: tz}
	if err := s.db.CreateSession(r.Context(), sess); err != nil {
		writeStoreError(w, err)
		return
	}
	s.Ingester.Invalidate()

	cmd := CalibrationCommand(sess.DeviceGroup)
	if cmd != "" && s.m != nil {
		if err := s.m.SendCommand(cmd); err != nil {
			logf("session %s: failed to send %s to hub: %v", sess.ID, cmd, err)
		}
	}

	resp := startSessionResponse{
		Msg:                "session started",
		SessionID:          sess.ID,
		Status:             sess.Status,
		Timezone:           sess.Timezone,
		StartTime:          sess.StartTime,
		CalibrationCommand: cmd,
		Notified:           s.Notifier.Notify(r.Context(), CommandStart, sess.ID),
	}
	s.Live.SessionStarted(sess.ID, sess)
	httputil.WriteJSONOK(w, resp)
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) sessionRequestID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return "", false
	}
	var req sessionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return "", false
	}
	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("session_id")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		httputil.BadRequest(w, "session_id required")
		return "", false
	}
	return req.SessionID, true
}

// finishCollection ends an active session and tells the devices to stop.
func (s *Server) finishCollection(r *http.Request, id string) (*db.Session, []Notification, error) {
	sess, err := s.db.EndSession(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	s.Ingester.Invalidate()
	notified := s.Notifier.Notify(r.Context(), CommandStop, id)
	s.Live.SessionEnded(id, sess)
	return sess, notified, nil
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionRequestID(w, r)
	if !ok {
		return
	}
	sess, notified, err := s.finishCollection(r, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"msg":        "session ended and analysis started",
		"session_id": sess.ID,
		"status":     sess.Status,
		"end_time":   sess.EndTime,
		"notified":   notified,
	})
}

type collectionStats struct {
	Total       int      `json:"total_data_points"`
	SensorTypes []string `json:"sensor_types"`
	DurationSec float64  `json:"collection_duration_seconds"`
}

type completeResponse struct {
	Msg            string                `json:"msg"`
	SessionID      string                `json:"session_id"`
	SessionStatus  db.SessionStatus      `json:"session_status"`
	Stats          collectionStats       `json:"data_collection_stats"`
	AnalysisID     string                `json:"analysis_id"`
	AnalysisStatus string                `json:"analysis_status"`
	Error          string                `json:"error_message,omitempty"`
	Report         *swing.AnalysisReport `json:"report"`
}

// completeSession ends collection and analyses the session before
// answering. A session already waiting in analyzing is analysed as is.
func (s *Server) completeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionRequestID(w, r)
	if !ok {
		return
	}
	sess, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sess.Status != db.StatusAnalyzing {
		if !sess.Status.Active() {
			httputil.WriteJSON(w, http.StatusConflict, map[string]any{
				"error":          "session not in active state",
				"current_status": sess.Status,
			})
			return
		}
		if sess, _, err = s.finishCollection(r, id); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	stats, err := s.db.ReadingStats(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out, err := s.worker.AnalyzeSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	resp := completeResponse{
		Msg:            "data collection marked as complete",
		SessionID:      id,
		SessionStatus:  out.Session.Status,
		Stats:          newCollectionStats(sess, stats),
		AnalysisID:     out.Report.ID,
		AnalysisStatus: "completed",
		Report:         out.Report,
	}
	if out.Err != nil {
		resp.AnalysisStatus = "failed"
		resp.Error = out.Err.Error()
	}
	httputil.WriteJSONOK(w, resp)
}

func newCollectionStats(sess *db.Session, stats db.ReadingStats) collectionStats {
	out := collectionStats{Total: stats.Total, SensorTypes: []string{}}
	for role := range stats.ByRole {
		out.SensorTypes = append(out.SensorTypes, string(role))
	}
	sort.Strings(out.SensorTypes)
	if sess.EndTime != nil {
		out.DurationSec = sess.EndTime.Sub(sess.StartTime).Seconds()
	}
	return out
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	var status db.SessionStatus
	if v := q.Get("status"); v != "" {
		st, err := db.ParseSessionStatus(v)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		status = st
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'limit' parameter %q", v))
			return
		}
		limit = n
	}

	sessions, err := s.db.ListSessions(r.Context(), status, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, map[string]any{"sessions": sessions})
}
