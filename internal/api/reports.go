package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/httputil"
	"github.com/banshee-data/swing.report/internal/monitor"
	"github.com/banshee-data/swing.report/internal/swing"
)

func (s *Server) showAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := sessionParam(w, r)
	if id == "" {
		return
	}
	rep, err := s.db.LatestReport(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"msg":           "analysis result",
		"id":            rep.ID,
		"session_id":    rep.SessionID,
		"phase_delay":   rep.PhaseDelay,
		"energy_ratio":  rep.EnergyRatio,
		"rom_data":      rep.ROM,
		"analysis_time": rep.CreatedAt,
		"fallback":      rep.Fallback,
	})
}

type sessionInfo struct {
	StartTime time.Time        `json:"start_time"`
	EndTime   *time.Time       `json:"end_time"`
	Status    db.SessionStatus `json:"status"`
	Timezone  string           `json:"timezone"`
}

type detailedReport struct {
	swing.Synthesis
	AngularVelocity *swing.AlignmentView `json:"angular_velocity_data,omitempty"`
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := sessionParam(w, r)
	if id == "" {
		return
	}
	sess, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	rep, err := s.db.LatestReport(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	stats, err := s.db.ReadingStats(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	detail := detailedReport{Synthesis: rep.Synthesis}
	if a, err := s.align(r, sess); err == nil {
		view := a.View(sess.Location())
		detail.AngularVelocity = &view
	}

	httputil.WriteJSONOK(w, map[string]any{
		"msg":      "analysis report",
		"report":   detail,
		"fallback": rep.Fallback,
		"error":    rep.Error,
		"stats":    stats,
		"session_info": sessionInfo{
			StartTime: sess.StartTime,
			EndTime:   sess.EndTime,
			Status:    sess.Status,
			Timezone:  sess.Timezone,
		},
	})
}

// align runs the alignment stage over the stored readings of sess.
func (s *Server) align(r *http.Request, sess *db.Session) (swing.Alignment, error) {
	readings, err := s.db.SessionReadings(r.Context(), sess.ID)
	if err != nil {
		return swing.Alignment{}, err
	}
	return s.analyzer.Align(swing.Session{
		ID:       sess.ID,
		Start:    sess.StartTime,
		Location: sess.Location(),
		Readings: readings,
	})
}

// sessionAlignment loads the session named by the request and aligns it,
// writing the error response itself when either step fails.
func (s *Server) sessionAlignment(w http.ResponseWriter, r *http.Request) (*db.Session, swing.Alignment, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil, swing.Alignment{}, false
	}
	id := sessionParam(w, r)
	if id == "" {
		return nil, swing.Alignment{}, false
	}
	sess, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return nil, swing.Alignment{}, false
	}
	a, err := s.align(r, sess)
	switch {
	case errors.Is(err, swing.ErrNoSensorData):
		httputil.NotFound(w, err.Error())
		return nil, swing.Alignment{}, false
	case err != nil:
		writeStoreError(w, err)
		return nil, swing.Alignment{}, false
	}
	return sess, a, true
}

func (s *Server) showSeries(w http.ResponseWriter, r *http.Request) {
	sess, a, ok := s.sessionAlignment(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, a.View(sess.Location()))
}

func (s *Server) showGyroChart(w http.ResponseWriter, r *http.Request) {
	sess, a, ok := s.sessionAlignment(w, r)
	if !ok {
		return
	}
	buf := bytes.NewBuffer(nil)
	title := fmt.Sprintf("Session %s gyro magnitude", sess.ID)
	if err := monitor.RenderGyroHTML(buf, a.View(sess.Location()), title); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.Copy(w, buf)
}

// showMagnitudePNG renders the gyro magnitudes, or the acceleration
// magnitudes with ?quantity=acc, with detected peaks marked.
func (s *Server) showMagnitudePNG(w http.ResponseWriter, r *http.Request) {
	sess, a, ok := s.sessionAlignment(w, r)
	if !ok {
		return
	}
	q := monitor.Gyro
	switch r.URL.Query().Get("quantity") {
	case "", "gyro":
	case "acc":
		q = monitor.Acc
	default:
		httputil.BadRequest(w, "quantity must be gyro or acc")
		return
	}

	p, err := monitor.MagnitudePlot(a, q, swing.PhaseDistance(s.analyzer.Options().Delay.SampleRate))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	buf := bytes.NewBuffer(nil)
	if err := monitor.WritePNG(buf, p, monitor.DefaultWidth, monitor.DefaultHeight); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", fmt.Sprintf("%s_%s.png", sess.ID, q)))
	io.Copy(w, buf)
}
