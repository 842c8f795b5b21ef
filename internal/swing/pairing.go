package swing

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// PeakPair matches one peak of series A with the nearest-in-time peak of
// series B. A and B are positions in the peak time slices given to
// PairPeaks; B is -1 when there was nothing to match.
type PeakPair struct {
	A       int     `json:"a"`
	B       int     `json:"b"`
	ATime   float64 `json:"a_time"`
	BTime   float64 `json:"b_time"`
	DT      float64 `json:"dt"`
	Matched bool    `json:"matched"`
}

// PairPeaks pairs every time in aTimes with the closest time in bTimes,
// which must be sorted ascending. On a tie the earlier B peak wins. DT is
// ATime - BTime.
func PairPeaks(aTimes, bTimes []float64) []PeakPair {
	pairs := make([]PeakPair, len(aTimes))
	for i, ta := range aTimes {
		pairs[i] = PeakPair{A: i, B: -1, ATime: ta}
		if len(bTimes) == 0 {
			continue
		}
		pos := sort.SearchFloat64s(bTimes, ta)
		best := -1
		for _, j := range []int{pos - 1, pos} {
			if j < 0 || j >= len(bTimes) {
				continue
			}
			if best < 0 || math.Abs(bTimes[j]-ta) < math.Abs(bTimes[best]-ta) {
				best = j
			}
		}
		pairs[i].B = best
		pairs[i].BTime = bTimes[best]
		pairs[i].DT = ta - bTimes[best]
		pairs[i].Matched = true
	}
	return pairs
}

// PairSummary condenses a pairing into the per-sensor summary row. Pairs
// counts every A peak; the DT statistics cover matched pairs only.
type PairSummary struct {
	Pairs    int      `json:"n_pairs"`
	MeanDT   *float64 `json:"mean_dt"`
	MedianDT *float64 `json:"median_dt"`
}

// SummarizePairs counts A peaks and reports mean and median DT over the
// matched pairs.
func SummarizePairs(pairs []PeakPair) PairSummary {
	var dts stats.Float64Data
	for _, p := range pairs {
		if p.Matched {
			dts = append(dts, p.DT)
		}
	}
	s := PairSummary{Pairs: len(pairs)}
	if len(dts) == 0 {
		return s
	}
	if mean, err := stats.Mean(dts); err == nil {
		s.MeanDT = &mean
	}
	if median, err := stats.Median(dts); err == nil {
		s.MedianDT = &median
	}
	return s
}

// PeakTimes returns the aligned times of the given peak indices.
func PeakTimes(times []float64, peaks PeakSet) []float64 {
	out := make([]float64, 0, peaks.Len())
	for _, i := range peaks.Indices {
		if i >= 0 && i < len(times) {
			out = append(out, times[i])
		}
	}
	return out
}
