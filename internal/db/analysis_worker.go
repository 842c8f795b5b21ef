package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/swing.report/internal/monitoring"
	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/timeutil"
)

var workerLogf = monitoring.Component("analysis worker")

// AnalysisWorker periodically analyses sessions waiting in the analyzing
// state. Successful runs move the session to completed; failed runs store
// the fallback report and move the session to stopped.
type AnalysisWorker struct {
	DB       *DB
	Analyzer *swing.Analyzer
	Interval time.Duration
	Clock    timeutil.Clock
	StopChan chan struct{}
	// OnAnalyzed is called after every stored run.
	OnAnalyzed func(*AnalysisOutcome)

	mu       sync.Mutex
	stopOnce sync.Once
}

func NewAnalysisWorker(db *DB, analyzer *swing.Analyzer, interval time.Duration) *AnalysisWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &AnalysisWorker{
		DB:       db,
		Analyzer: analyzer,
		Interval: interval,
		Clock:    timeutil.RealClock{},
		StopChan: make(chan struct{}),
	}
}

// Start runs the periodic worker loop in a goroutine.
func (w *AnalysisWorker) Start(ctx context.Context) {
	ticker := w.Clock.NewTicker(w.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if _, err := w.RunOnce(ctx); err != nil {
					workerLogf("run error: %v", err)
				}
			case <-w.StopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop requests the worker to stop. It is safe to call more than once.
func (w *AnalysisWorker) Stop() {
	w.stopOnce.Do(func() { close(w.StopChan) })
}

// RunOnce analyses every session currently in analyzing and returns how
// many were processed. Analysis failures are not returned as errors: they
// are recorded on the session.
func (w *AnalysisWorker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.DB.ListSessions(ctx, StatusAnalyzing, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range pending {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if _, err := w.AnalyzeSession(ctx, pending[i].ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// AnalysisOutcome is the result of analysing one session.
type AnalysisOutcome struct {
	Session *Session
	Report  *swing.AnalysisReport
	// Err is the analysis failure behind a fallback report.
	Err error
}

// AnalyzeSession runs the analysis for one session that is in analyzing,
// stores the report and advances the session. Analysis failures are
// reported in the outcome; the returned error is reserved for storage and
// lifecycle failures.
func (w *AnalysisWorker) AnalyzeSession(ctx context.Context, id string) (*AnalysisOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.DB.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusAnalyzing {
		return nil, fmt.Errorf("%w: session %s is %s, not %s", ErrInvalidTransition, id, s.Status, StatusAnalyzing)
	}

	readings, err := w.DB.SessionReadings(ctx, id)
	if err != nil {
		return nil, err
	}

	start := w.Clock.Now()
	rep, analysisErr := w.Analyzer.AnalyzeSessionWithFallback(swing.Session{
		ID:       s.ID,
		Start:    s.StartTime,
		Location: s.Location(),
		Readings: readings,
	})
	if err := w.DB.SaveReport(ctx, rep); err != nil {
		return nil, err
	}

	next := StatusCompleted
	if analysisErr != nil {
		next = StatusStopped
	}
	s, err = w.DB.UpdateSessionStatus(ctx, id, next)
	if err != nil {
		return nil, err
	}
	workerLogf("session %s: %d readings -> %s in %v", id, len(readings), next, w.Clock.Since(start))

	out := &AnalysisOutcome{Session: s, Report: rep, Err: analysisErr}
	if w.OnAnalyzed != nil {
		w.OnAnalyzed(out)
	}
	return out, nil
}
