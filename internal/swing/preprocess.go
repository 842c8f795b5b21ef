package swing

import (
	"math"
	"time"

	"github.com/pconstantinou/savitzkygolay"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/swing.report/internal/monitoring"
)

// Filter defaults.
const (
	DefaultSavgolWindow = 15
	DefaultSavgolOrder  = 3
)

// RoleSeries holds one role's samples in arrival order. Times[i] is the
// zero time when sample i had no resolvable timestamp.
type RoleSeries struct {
	Role  SensorRole
	Times []time.Time
	Acc   []Vec3
	Gyro  []Vec3
	Angle []Vec3
}

// Len returns the number of samples.
func (s *RoleSeries) Len() int { return len(s.Times) }

// Resolved returns the number of samples with a resolved time.
func (s *RoleSeries) Resolved() int {
	n := 0
	for _, t := range s.Times {
		if !t.IsZero() {
			n++
		}
	}
	return n
}

// FilterOptions configures Savitzky-Golay smoothing.
type FilterOptions struct {
	Window int
	Order  int
}

// DefaultFilterOptions returns the window 15, order 3 filter.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{Window: DefaultSavgolWindow, Order: DefaultSavgolOrder}
}

// effective returns the window and polynomial order used for a series of
// length n: the window is capped at n and rounded down to an odd number no
// smaller than 3, the order is capped at window-1. ok is false when the
// series is too short to filter.
func (o FilterOptions) effective(n int) (window, order int, ok bool) {
	if n < 3 {
		return 0, 0, false
	}
	window = o.Window
	if window <= 0 {
		window = DefaultSavgolWindow
	}
	window = min(window, n)
	if window%2 == 0 {
		window--
	}
	window = max(window, 3)

	order = o.Order
	if order < 0 {
		order = DefaultSavgolOrder
	}
	order = min(order, window-1)
	return window, order, true
}

// GroupByRole splits readings by role in arrival order, resolving each
// reading's timestamp with codec. Readings with an unknown role are
// dropped.
func GroupByRole(readings []SensorReading, codec Codec, sessionStart time.Time) map[SensorRole]*RoleSeries {
	out := make(map[SensorRole]*RoleSeries)
	dropped := 0
	for _, r := range readings {
		if !r.Role.Valid() {
			dropped++
			continue
		}
		s, ok := out[r.Role]
		if !ok {
			s = &RoleSeries{Role: r.Role}
			out[r.Role] = s
		}
		t, _ := codec.Resolve(r, sessionStart)
		s.Times = append(s.Times, t)
		s.Acc = append(s.Acc, r.Acc)
		s.Gyro = append(s.Gyro, r.Gyro)
		s.Angle = append(s.Angle, r.Angle)
	}
	if dropped > 0 {
		monitoring.Logf("swing: dropped %d readings with unknown sensor role", dropped)
	}
	return out
}

// Preprocess returns a copy of every series with the acc and gyro channels
// smoothed. Angles and times are carried through untouched.
func Preprocess(series map[SensorRole]*RoleSeries, opts FilterOptions) map[SensorRole]*RoleSeries {
	out := make(map[SensorRole]*RoleSeries, len(series))
	for role, s := range series {
		out[role] = &RoleSeries{
			Role:  role,
			Times: append([]time.Time(nil), s.Times...),
			Acc:   smoothVectors(s.Acc, opts),
			Gyro:  smoothVectors(s.Gyro, opts),
			Angle: append([]Vec3(nil), s.Angle...),
		}
	}
	return out
}

func smoothVectors(vs []Vec3, opts FilterOptions) []Vec3 {
	out := make([]Vec3, len(vs))
	for axis := 0; axis < 3; axis++ {
		col := Smooth(column(vs, axis), opts)
		for i, v := range col {
			out[i][axis] = v
		}
	}
	return out
}

// EdgeWidth is the number of samples at each end of a series of length n
// whose smoothed values come from an extrapolated fit rather than a centred
// window. It is zero when the series is too short to filter.
func (o FilterOptions) EdgeWidth(n int) int {
	window, _, ok := o.effective(n)
	if !ok {
		return 0
	}
	return window / 2
}

// librarySmoother is the preferred filter for windows of five or more
// samples. A nil result falls through to smoothLeastSquares.
var librarySmoother = smoothLibrary

// Smooth applies Savitzky-Golay smoothing to x. Series shorter than three
// samples, and any input the filter cannot handle, are returned unchanged.
func Smooth(x []float64, opts FilterOptions) []float64 {
	window, order, ok := opts.effective(len(x))
	if !ok {
		return append([]float64(nil), x...)
	}
	var out []float64
	if window >= 5 {
		out = librarySmoother(x, window, order)
	}
	if out == nil {
		out = smoothLeastSquares(x, window, order)
	}
	if out == nil || !allFinite(out) {
		return append([]float64(nil), x...)
	}
	return out
}

func smoothLibrary(x []float64, window, order int) (out []float64) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
		}
	}()
	filter, err := savitzkygolay.NewFilter(window, 0, order)
	if err != nil {
		return nil
	}
	xs := make([]float64, len(x))
	floats.Span(xs, 0, float64(len(x)-1))
	y, err := filter.Process(x, xs)
	if err != nil || len(y) != len(x) {
		return nil
	}
	return y
}

// smoothLeastSquares fits a polynomial of the given order over each window.
// Interior samples take the fitted value at the window centre; the first and
// last window/2 samples are evaluated from the fit of the first and last
// full window.
func smoothLeastSquares(x []float64, window, order int) []float64 {
	n := len(x)
	if window > n || window < 1 {
		return nil
	}
	half := window / 2
	hat := projection(window, order)
	if hat == nil {
		return nil
	}

	out := make([]float64, n)
	row := make([]float64, window)
	for i := half; i < n-half; i++ {
		mat.Row(row, half, hat)
		out[i] = floats.Dot(row, x[i-half:i+half+1])
	}
	for i := 0; i < half; i++ {
		mat.Row(row, i, hat)
		out[i] = floats.Dot(row, x[:window])
	}
	for i := n - half; i < n; i++ {
		mat.Row(row, i-(n-window), hat)
		out[i] = floats.Dot(row, x[n-window:])
	}
	return out
}

// projection returns the window x window hat matrix A(AᵀA)⁻¹Aᵀ of the
// polynomial design matrix over offsets -window/2..window/2.
func projection(window, order int) *mat.Dense {
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		off := float64(i - half)
		for j := 0; j <= order; j++ {
			a.Set(i, j, math.Pow(off, float64(j)))
		}
	}
	var ata, inv mat.Dense
	ata.Mul(a.T(), a)
	if err := inv.Inverse(&ata); err != nil {
		return nil
	}
	var tmp, hat mat.Dense
	tmp.Mul(a, &inv)
	hat.Mul(&tmp, a.T())
	return &hat
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
