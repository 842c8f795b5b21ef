package swing

import (
	"sort"
	"time"

	"github.com/banshee-data/swing.report/internal/units"
)

// AlignedSeries is one role's resolved samples on the shared time axis.
type AlignedSeries struct {
	Role SensorRole
	// Times are seconds since the union window start, non-decreasing.
	Times          []float64
	GyroMagnitudes []float64
	AccMagnitudes  []float64
	// Samples maps each aligned point back to its index in the RoleSeries.
	Samples []int
}

// Len returns the number of aligned points.
func (a *AlignedSeries) Len() int { return len(a.Times) }

// Alignment is the union time window over all roles and each role's
// series relative to its start.
type Alignment struct {
	Start  time.Time
	End    time.Time
	Series map[SensorRole]*AlignedSeries
}

// Duration returns the union window length in seconds.
func (a Alignment) Duration() float64 {
	return a.End.Sub(a.Start).Seconds()
}

// Align builds the union window over every role with at least one resolved
// sample and expresses each role's resolved samples relative to the window
// start. Samples without a resolved time are left out. ok is false when no
// role has any resolved sample.
func Align(series map[SensorRole]*RoleSeries) (Alignment, bool) {
	type timed struct {
		idx int
		t   time.Time
	}
	ordered := make(map[SensorRole][]timed)
	var start, end time.Time
	for role, s := range series {
		var pts []timed
		for i, t := range s.Times {
			if !t.IsZero() {
				pts = append(pts, timed{i, t})
			}
		}
		if len(pts) == 0 {
			continue
		}
		sort.SliceStable(pts, func(a, b int) bool { return pts[a].t.Before(pts[b].t) })
		ordered[role] = pts

		first, last := pts[0].t, pts[len(pts)-1].t
		if start.IsZero() || first.Before(start) {
			start = first
		}
		if end.IsZero() || last.After(end) {
			end = last
		}
	}
	if len(ordered) == 0 {
		return Alignment{}, false
	}

	out := Alignment{Start: start, End: end, Series: make(map[SensorRole]*AlignedSeries, len(ordered))}
	for role, pts := range ordered {
		s := series[role]
		gyro := magnitudes(s.Gyro)
		acc := magnitudes(s.Acc)
		a := &AlignedSeries{Role: role}
		for _, p := range pts {
			if p.t.Before(start) || p.t.After(end) {
				continue
			}
			a.Times = append(a.Times, p.t.Sub(start).Seconds())
			a.GyroMagnitudes = append(a.GyroMagnitudes, gyro[p.idx])
			a.AccMagnitudes = append(a.AccMagnitudes, acc[p.idx])
			a.Samples = append(a.Samples, p.idx)
		}
		out.Series[role] = a
	}
	return out, true
}

// SeriesView is the plotting view of one aligned role.
type SeriesView struct {
	Times          []float64 `json:"times"`
	GyroMagnitudes []float64 `json:"gyro_magnitudes"`
}

// AlignmentView is the JSON handed to chart renderers. MasterStart and
// MasterEnd are seconds since local midnight of the window start.
type AlignmentView struct {
	Sensors         map[SensorRole]SeriesView `json:"sensors"`
	MasterStart     float64                   `json:"master_start"`
	MasterEnd       float64                   `json:"master_end"`
	MasterStartTime string                    `json:"master_start_time"`
	MasterEndTime   string                    `json:"master_end_time"`
}

// View converts a to its plotting view in loc (UTC when nil).
func (a Alignment) View(loc *time.Location) AlignmentView {
	if loc == nil {
		loc = time.UTC
	}
	v := AlignmentView{Sensors: make(map[SensorRole]SeriesView, len(a.Series))}
	for role, s := range a.Series {
		v.Sensors[role] = SeriesView{Times: s.Times, GyroMagnitudes: s.GyroMagnitudes}
	}
	if a.Start.IsZero() {
		return v
	}
	midnight := units.LocalMidnight(a.Start, loc)
	v.MasterStart = a.Start.Sub(midnight).Seconds()
	v.MasterEnd = a.End.Sub(midnight).Seconds()
	v.MasterStartTime = a.Start.In(loc).Format(time.RFC3339Nano)
	v.MasterEndTime = a.End.In(loc).Format(time.RFC3339Nano)
	return v
}
