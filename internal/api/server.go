package api

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/httputil"
	"github.com/banshee-data/swing.report/internal/ingest"
	"github.com/banshee-data/swing.report/internal/live"
	"github.com/banshee-data/swing.report/internal/monitoring"
	"github.com/banshee-data/swing.report/internal/serialmux"
	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Component("api")

type Server struct {
	m        serialmux.SerialMuxInterface
	db       *db.DB
	worker   *db.AnalysisWorker
	analyzer *swing.Analyzer

	// Timezone is used for sessions started without one.
	Timezone string
	Ingester *ingest.Ingester
	Live     *live.Hub
	Notifier *DeviceNotifier
	HubState *serialmux.HubState

	PortFactory serialmux.SerialPortFactory
	ListPorts   func() ([]string, error)
}

// NewServer builds the HTTP API. m may be nil when no receiver hub is
// attached. The server installs itself as the worker's and the ingester's
// callback so analysis results and readings reach the live feed.
func NewServer(m serialmux.SerialMuxInterface, database *db.DB, worker *db.AnalysisWorker, in *ingest.Ingester) *Server {
	s := &Server{
		m:        m,
		db:       database,
		worker:   worker,
		analyzer: worker.Analyzer,
		Timezone: "UTC",
		Ingester: in,
		Live:     live.NewHub(),
		Notifier: NewDeviceNotifier(nil),

		PortFactory: serialmux.NewRealSerialPortFactory(),
		ListPorts:   defaultListPorts,
	}
	if s.Ingester == nil {
		store := ingest.Store{DB: database}
		s.Ingester = ingest.New(store, store)
	}
	s.Ingester.OnRecorded = func(sessionID string, r swing.SensorReading) {
		s.Live.ReadingRecorded(sessionID, r)
	}
	worker.OnAnalyzed = func(out *db.AnalysisOutcome) {
		s.Live.AnalysisFinished(out.Session.ID, out.Report, out.Err)
	}
	return s
}

// LoadDevices registers the stored device addresses with the notifier.
func (s *Server) LoadDevices(ctx context.Context) error {
	devices, err := s.db.ListDevices(ctx)
	if err != nil {
		return err
	}
	s.Notifier.Load(devices)
	return nil
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes through to the underlying writer for the websocket upgrade.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/api/status", s.showStatus)

	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/start", s.startSession)
	mux.HandleFunc("/api/sessions/end", s.endSession)
	mux.HandleFunc("/api/sessions/complete", s.completeSession)

	mux.HandleFunc("/api/readings", s.uploadReading)
	mux.HandleFunc("/api/readings/batch", s.uploadBatch)

	mux.HandleFunc("/api/analysis", s.showAnalysis)
	mux.HandleFunc("/api/report", s.showReport)
	mux.HandleFunc("/api/series", s.showSeries)
	mux.HandleFunc("/api/charts/gyro", s.showGyroChart)
	mux.HandleFunc("/api/charts/gyro.png", s.showMagnitudePNG)

	mux.HandleFunc("/api/devices", s.listDevices)
	mux.HandleFunc("/api/devices/register", s.registerDevice)

	mux.HandleFunc("/api/serial/test", s.handleSerialTest)
	mux.HandleFunc("/api/serial/devices", s.handleSerialDevices)
	mux.HandleFunc("/api/serial/reload", s.handleSerialReload)

	mux.Handle("/ws", s.Live)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.m == nil {
		http.Error(w, "No receiver hub attached", http.StatusServiceUnavailable)
		return
	}

	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

type statusResponse struct {
	Hub           *serialmux.HubSnapshot `json:"hub,omitempty"`
	Ingest        ingest.Stats           `json:"ingest"`
	LiveClients   int                    `json:"live_clients"`
	ActiveSession *db.Session            `json:"active_session"`
	Devices       []string               `json:"notify_devices"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{
		Ingest:      s.Ingester.Stats(),
		LiveClients: s.Live.Clients(),
		Devices:     s.Notifier.Devices(),
	}
	if s.HubState != nil {
		snap := s.HubState.Snapshot()
		resp.Hub = &snap
	}
	active, err := s.db.ActiveSession(r.Context())
	switch {
	case err == nil:
		resp.ActiveSession = active
	case !errors.Is(err, db.ErrSessionNotFound):
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, resp)
}

// hubPortPath returns the port the running hub mux owns, if known.
func (s *Server) hubPortPath() string {
	if mgr, ok := s.m.(*SerialPortManager); ok {
		return mgr.Snapshot().PortPath
	}
	return ""
}

// decodeOptionalJSON decodes a JSON body into v, leaving v untouched when
// the request has no body.
func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return httputil.DecodeJSON(r, v)
}

// sessionParam returns the session_id query parameter, or "" after writing
// a 400 response.
func sessionParam(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		httputil.BadRequest(w, "session_id required")
	}
	return id
}

// writeStoreError maps storage errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrSessionNotFound),
		errors.Is(err, db.ErrReportNotFound),
		errors.Is(err, db.ErrDeviceNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, db.ErrSessionNotActive),
		errors.Is(err, db.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, swing.ErrInvalidPayload),
		errors.Is(err, swing.ErrUnknownRole):
		httputil.BadRequest(w, err.Error())
	default:
		logf("request failed: %v", err)
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) timezone(tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = s.Timezone
	}
	if _, err := units.LoadLocation(tz); err != nil {
		return "", err
	}
	return tz, nil
}
