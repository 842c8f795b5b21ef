package swing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PeakOptions constrains FindPeaks. Nil thresholds and a Distance below 1
// are not applied.
type PeakOptions struct {
	Height     *float64
	Prominence *float64
	// Distance is the minimum index spacing between reported peaks.
	Distance int
	// Edge excludes candidates within Edge samples of either end.
	Edge int
}

// PeakSet lists the peaks of one series, in increasing index order.
type PeakSet struct {
	Indices     []int     `json:"indices"`
	Heights     []float64 `json:"heights"`
	Prominences []float64 `json:"prominences"`
	// Relaxed is set when the peaks came from the height-only retry.
	Relaxed bool `json:"relaxed,omitempty"`
}

// Len returns the number of peaks.
func (p PeakSet) Len() int { return len(p.Indices) }

// FindPeaks returns the local maxima of x that satisfy opts. A flat top
// resolves to its middle sample. The first and last sample are never
// peaks. Height is applied first, then Distance (keeping the tallest peaks),
// then Prominence.
func FindPeaks(x []float64, opts PeakOptions) PeakSet {
	cands := localMaxima(x)

	if opts.Edge > 0 {
		kept := cands[:0]
		for _, p := range cands {
			if p >= opts.Edge && p <= len(x)-1-opts.Edge {
				kept = append(kept, p)
			}
		}
		cands = kept
	}

	if opts.Height != nil {
		kept := cands[:0]
		for _, p := range cands {
			if x[p] >= *opts.Height {
				kept = append(kept, p)
			}
		}
		cands = kept
	}

	if opts.Distance > 1 && len(cands) > 1 {
		cands = selectByDistance(x, cands, opts.Distance)
	}

	var out PeakSet
	for _, p := range cands {
		prom := prominence(x, p)
		if opts.Prominence != nil && prom < *opts.Prominence {
			continue
		}
		out.Indices = append(out.Indices, p)
		out.Heights = append(out.Heights, x[p])
		out.Prominences = append(out.Prominences, prom)
	}
	return out
}

// DefaultProminence is max(0.05, 0.5*σ) with σ the population standard
// deviation of x.
func DefaultProminence(x []float64) float64 {
	if len(x) == 0 {
		return 0.05
	}
	sd := math.Sqrt(stat.PopVariance(x, nil))
	if math.IsNaN(sd) {
		return 0.05
	}
	return math.Max(0.05, 0.5*sd)
}

// DetectPeaks finds peaks with the given prominence threshold, or
// DefaultProminence when nil, and an optional minimum distance.
func DetectPeaks(x []float64, prominence *float64, minDistance int) PeakSet {
	if prominence == nil {
		p := DefaultProminence(x)
		prominence = &p
	}
	return FindPeaks(x, PeakOptions{Prominence: prominence, Distance: minDistance})
}

// PhaseThreshold is the strict and relaxed peak criteria for one role.
type PhaseThreshold struct {
	Height        float64
	Prominence    float64
	RelaxedHeight float64
}

// PhaseThresholds are the per-role criteria on gyro magnitude (deg/s).
var PhaseThresholds = map[SensorRole]PhaseThreshold{
	RoleWaist:    {Height: 10, Prominence: 5, RelaxedHeight: 5},
	RoleShoulder: {Height: 8, Prominence: 3, RelaxedHeight: 3},
	RoleWrist:    {Height: 12, Prominence: 5, RelaxedHeight: 5},
	RoleRacket:   {Height: 12, Prominence: 5, RelaxedHeight: 5},
}

// PhaseDistance is the minimum peak spacing in samples: 10% of the sample
// rate, at least one sample.
func PhaseDistance(sampleRate float64) int {
	return max(1, int(math.Ceil(0.1*sampleRate)))
}

// PhasePeaks detects peaks for phase analysis. The strict role thresholds
// with PhaseDistance are tried first; when they find nothing a single
// height-only retry with the relaxed height is made. An empty result after
// the retry is final. Both passes ignore the first and last edge samples,
// where a smoothed series is extrapolated.
func PhasePeaks(role SensorRole, x []float64, sampleRate float64, edge int) PeakSet {
	th, ok := PhaseThresholds[role]
	if !ok {
		th = PhaseThresholds[RoleWrist]
	}
	strict := FindPeaks(x, PeakOptions{
		Height:     &th.Height,
		Prominence: &th.Prominence,
		Distance:   PhaseDistance(sampleRate),
		Edge:       edge,
	})
	if strict.Len() > 0 {
		return strict
	}
	relaxed := FindPeaks(x, PeakOptions{Height: &th.RelaxedHeight, Edge: edge})
	relaxed.Relaxed = true
	return relaxed
}

func localMaxima(x []float64) []int {
	var peaks []int
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
				continue
			}
		}
		i++
	}
	return peaks
}

// prominence is the height of x[p] above the higher of the lowest points
// reached on each side before the signal rises above x[p].
func prominence(x []float64, p int) float64 {
	leftMin := x[p]
	for i := p; i >= 0 && x[i] <= x[p]; i-- {
		leftMin = math.Min(leftMin, x[i])
	}
	rightMin := x[p]
	for i := p; i < len(x) && x[i] <= x[p]; i++ {
		rightMin = math.Min(rightMin, x[i])
	}
	return x[p] - math.Max(leftMin, rightMin)
}

func selectByDistance(x []float64, peaks []int, distance int) []int {
	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[peaks[order[a]]] < x[peaks[order[b]]] })

	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}
