package swing

// Delay defaults used when a transition has no peak pairing.
const (
	DefaultWaistToShoulder = 0.08
	DefaultShoulderToWrist = 0.05
	DefaultSampleRate      = 200.0
)

// DelaySource says how a delay value was obtained.
type DelaySource string

const (
	DelayFromTime    DelaySource = "time"
	DelayFromIndex   DelaySource = "index"
	DelayFromDefault DelaySource = "default"
)

// PhaseInput is one role's signal for phase analysis. Times is nil when the
// role has no resolved timestamps; peaks are then compared by index.
type PhaseInput struct {
	Magnitudes []float64
	Times      []float64
}

// DelayEstimate holds the kinetic-chain delays in seconds.
type DelayEstimate struct {
	WaistToShoulder float64 `json:"waist_to_shoulder"`
	ShoulderToWrist float64 `json:"shoulder_to_wrist"`
	// WristToRacket is only set when both roles have a pairing.
	WristToRacket *float64               `json:"wrist_to_racket,omitempty"`
	Sources       map[string]DelaySource `json:"sources,omitempty"`
}

// DelayOptions configures EstimateDelays.
type DelayOptions struct {
	// SampleRate converts index differences to seconds.
	SampleRate             float64
	DefaultWaistToShoulder float64
	DefaultShoulderToWrist float64
}

// DefaultDelayOptions returns 200 Hz with 0.08 s and 0.05 s defaults.
func DefaultDelayOptions() DelayOptions {
	return DelayOptions{
		SampleRate:             DefaultSampleRate,
		DefaultWaistToShoulder: DefaultWaistToShoulder,
		DefaultShoulderToWrist: DefaultShoulderToWrist,
	}
}

// DefaultDelays returns the estimate used when nothing can be measured.
func DefaultDelays(opts DelayOptions) DelayEstimate {
	return DelayEstimate{
		WaistToShoulder: opts.DefaultWaistToShoulder,
		ShoulderToWrist: opts.DefaultShoulderToWrist,
		Sources: map[string]DelaySource{
			"waist_to_shoulder": DelayFromDefault,
			"shoulder_to_wrist": DelayFromDefault,
		},
	}
}

// EstimateDelays measures waist→shoulder and shoulder→wrist (and, when
// available, wrist→racket) delays. For each transition the proximal peaks
// are walked in order and, for each, the distal peaks in order; the first
// distal peak strictly after a proximal peak gives the delay.
func EstimateDelays(inputs map[SensorRole]PhaseInput, peaks map[SensorRole]PeakSet, opts DelayOptions) DelayEstimate {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	est := DefaultDelays(opts)

	if d, src, ok := firstDelay(inputs[RoleWaist], inputs[RoleShoulder], peaks[RoleWaist], peaks[RoleShoulder], opts.SampleRate); ok {
		est.WaistToShoulder = d
		est.Sources["waist_to_shoulder"] = src
	}
	if d, src, ok := firstDelay(inputs[RoleShoulder], inputs[RoleWrist], peaks[RoleShoulder], peaks[RoleWrist], opts.SampleRate); ok {
		est.ShoulderToWrist = d
		est.Sources["shoulder_to_wrist"] = src
	}
	if d, src, ok := firstDelay(inputs[RoleWrist], inputs[RoleRacket], peaks[RoleWrist], peaks[RoleRacket], opts.SampleRate); ok {
		est.WristToRacket = &d
		est.Sources["wrist_to_racket"] = src
	}
	return est
}

func firstDelay(from, to PhaseInput, fromPeaks, toPeaks PeakSet, sampleRate float64) (float64, DelaySource, bool) {
	useTime := from.Times != nil && to.Times != nil
	for _, i := range fromPeaks.Indices {
		for _, j := range toPeaks.Indices {
			if useTime {
				if i >= len(from.Times) || j >= len(to.Times) {
					continue
				}
				if to.Times[j] > from.Times[i] {
					return to.Times[j] - from.Times[i], DelayFromTime, true
				}
				continue
			}
			if j > i {
				return float64(j-i) / sampleRate, DelayFromIndex, true
			}
		}
	}
	return 0, DelayFromDefault, false
}
