package swing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/swing.report/internal/monitoring"
)

// Options configures an Analyzer.
type Options struct {
	Filter FilterOptions
	Delay  DelayOptions
	Energy EnergyOptions
	Ideals Ideals
	Locale Locale
	// Location is used for sessions that do not carry their own.
	Location          *time.Location
	RolloverThreshold time.Duration
}

// DefaultOptions returns the standard analysis configuration.
func DefaultOptions() Options {
	return Options{
		Filter:            DefaultFilterOptions(),
		Delay:             DefaultDelayOptions(),
		Energy:            DefaultEnergyOptions(),
		Ideals:            DefaultIdeals(),
		Locale:            LocaleZH,
		Location:          time.UTC,
		RolloverThreshold: DefaultRolloverThreshold,
	}
}

// Analyzer runs the analysis pipeline. It holds no per-session state and is
// safe for concurrent use.
type Analyzer struct {
	opts Options
	// Now stamps reports; defaults to time.Now.
	Now func() time.Time
}

// NewAnalyzer returns an Analyzer using opts.
func NewAnalyzer(opts Options) *Analyzer {
	return &Analyzer{opts: opts, Now: time.Now}
}

// Options returns the analyzer configuration.
func (a *Analyzer) Options() Options { return a.opts }

func (a *Analyzer) codec(s Session) Codec {
	loc := s.Location
	if loc == nil {
		loc = a.opts.Location
	}
	return NewCodec(loc, a.opts.RolloverThreshold)
}

// sessionStart returns s.Start, or when it is unset the earliest instant
// among readings that resolve without a reference date.
func sessionStart(s Session, codec Codec) time.Time {
	if !s.Start.IsZero() {
		return s.Start
	}
	var earliest time.Time
	for _, r := range s.Readings {
		var t time.Time
		switch {
		case r.ResolvedTime != nil:
			t = *r.ResolvedTime
		default:
			if _, packed := SecondsFromMidnight(string(r.Timestamp)); packed {
				continue
			}
			var ok bool
			if t, ok = codec.Parse(r.Timestamp, time.Time{}); !ok {
				continue
			}
		}
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	if earliest.IsZero() {
		return time.Unix(0, 0).In(codec.Location)
	}
	return earliest
}

// prepared is the preprocessed state shared by analysis and plotting.
type prepared struct {
	filtered  map[SensorRole]*RoleSeries
	alignment Alignment
	aligned   bool
}

func (a *Analyzer) prepare(s Session) (prepared, error) {
	if len(s.Readings) == 0 {
		return prepared{}, &AnalysisError{Stage: "input", Err: ErrNoSensorData}
	}
	codec := a.codec(s)
	grouped := GroupByRole(s.Readings, codec, sessionStart(s, codec))
	if len(grouped) == 0 {
		return prepared{}, &AnalysisError{Stage: "input", Err: fmt.Errorf("%w: no readings with a known sensor role", ErrNoSensorData)}
	}
	p := prepared{filtered: Preprocess(grouped, a.opts.Filter)}
	p.alignment, p.aligned = Align(p.filtered)
	return p, nil
}

// Align runs the pipeline up to the time-window aligner, for plotting.
func (a *Analyzer) Align(s Session) (Alignment, error) {
	p, err := a.prepare(s)
	if err != nil {
		return Alignment{}, err
	}
	if !p.aligned {
		return Alignment{Series: map[SensorRole]*AlignedSeries{}}, nil
	}
	return p.alignment, nil
}

// AnalyzeSession is the strict analysis path: it returns an error instead
// of a report when the session cannot be analysed.
func (a *Analyzer) AnalyzeSession(s Session) (*AnalysisReport, error) {
	p, err := a.prepare(s)
	if err != nil {
		return nil, err
	}
	fs := a.opts.Delay.SampleRate
	if fs <= 0 {
		fs = DefaultSampleRate
	}

	inputs := make(map[SensorRole]PhaseInput, len(p.filtered))
	peaks := make(map[SensorRole]PeakSet, len(p.filtered))
	correlation := make(map[SensorRole]PairSummary)
	for role, series := range p.filtered {
		edge := a.opts.Filter.EdgeWidth(series.Len())
		in := PhaseInput{Magnitudes: magnitudes(series.Gyro)}
		if p.aligned {
			if as, ok := p.alignment.Series[role]; ok && as.Len() > 0 {
				in = PhaseInput{Magnitudes: as.GyroMagnitudes, Times: as.Times}
				correlation[role] = correlate(as, fs, edge)
			}
		}
		inputs[role] = in
		peaks[role] = PhasePeaks(role, in.Magnitudes, fs, edge)
	}

	if !p.aligned {
		monitoring.Logf("swing: session %s: %v, using sample order", s.ID, ErrNoTimedData)
	}
	delay := EstimateDelays(inputs, peaks, a.opts.Delay)

	var waistGyroZ []float64
	if w, ok := p.filtered[RoleWaist]; ok {
		waistGyroZ = column(w.Gyro, 2)
	}
	var wristAcc []Vec3
	dt := 1 / fs
	if w, ok := p.filtered[RoleWrist]; ok {
		wristAcc = w.Acc
		dt = SampleInterval(w.Times, fs)
	}
	energy := ComputeEnergy(waistGyroZ, wristAcc, dt, a.opts.Energy)

	angles := make(map[SensorRole][]Vec3, len(p.filtered))
	for role, series := range p.filtered {
		angles[role] = series.Angle
	}
	rom := ComputeROM(angles)

	monitoring.Logf("swing: session %s analysed: %d roles, delays %.3fs/%.3fs, energy ratio %.2f",
		s.ID, len(p.filtered), delay.WaistToShoulder, delay.ShoulderToWrist, energy.Ratio)

	return &AnalysisReport{
		ID:          uuid.New().String(),
		SessionID:   s.ID,
		CreatedAt:   a.Now(),
		PhaseDelay:  delay,
		EnergyRatio: energy.Ratio,
		ROM:         rom,
		Energy:      energy,
		Peaks:       peaks,
		Correlation: correlation,
		Synthesis:   Synthesize(delay, energy, rom, a.opts.Ideals, a.opts.Locale),
	}, nil
}

// correlate pairs accelerometer peaks with gyroscope peaks of one role.
func correlate(as *AlignedSeries, fs float64, edge int) PairSummary {
	opts := func(x []float64) PeakOptions {
		prom := DefaultProminence(x)
		return PeakOptions{Prominence: &prom, Distance: PhaseDistance(fs), Edge: edge}
	}
	accPeaks := FindPeaks(as.AccMagnitudes, opts(as.AccMagnitudes))
	gyroPeaks := FindPeaks(as.GyroMagnitudes, opts(as.GyroMagnitudes))
	return SummarizePairs(PairPeaks(PeakTimes(as.Times, accPeaks), PeakTimes(as.Times, gyroPeaks)))
}

// FallbackReport is the report stored when analysis fails: default delays,
// the fallback energy ratio and ideal ROM values.
func (a *Analyzer) FallbackReport(sessionID string, cause error) *AnalysisReport {
	delay := DefaultDelays(a.opts.Delay)
	energy := EnergyProfile{Ratio: a.opts.Energy.FallbackRatio, Fallback: true}
	rom := ROMProfile{
		Waist:    a.opts.Ideals.ROMWaist,
		Shoulder: a.opts.Ideals.ROMShoulder,
		Wrist:    a.opts.Ideals.ROMWrist,
	}
	rep := &AnalysisReport{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		CreatedAt:   a.Now(),
		PhaseDelay:  delay,
		EnergyRatio: energy.Ratio,
		ROM:         rom,
		Energy:      energy,
		Peaks:       map[SensorRole]PeakSet{},
		Synthesis:   Synthesize(delay, energy, rom, a.opts.Ideals, a.opts.Locale),
		Fallback:    true,
	}
	if cause != nil {
		rep.Error = cause.Error()
	}
	return rep
}

// AnalyzeSessionWithFallback always returns a report. When the strict path
// fails, or panics, the fallback report is returned together with the
// error so the caller can mark the session as failed.
func (a *Analyzer) AnalyzeSessionWithFallback(s Session) (rep *AnalysisReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &AnalysisError{Stage: "panic", Err: fmt.Errorf("%v", r)}
			monitoring.Logf("swing: session %s analysis panicked: %v", s.ID, r)
			rep = a.FallbackReport(s.ID, err)
		}
	}()

	rep, err = a.AnalyzeSession(s)
	if err != nil {
		monitoring.Logf("swing: session %s analysis failed, storing fallback report: %v", s.ID, err)
		return a.FallbackReport(s.ID, err), err
	}
	return rep, nil
}
