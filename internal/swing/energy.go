package swing

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

// Energy model constants.
const (
	DefaultWaistInertia = 1.2  // kg·m²
	DefaultRacketMass   = 0.1  // kg
	DefaultGravity      = 9.81 // m/s² per g
	DefaultEnergyRatio  = 0.65
)

// EnergyOptions are the physical constants of the energy proxies.
type EnergyOptions struct {
	WaistInertia  float64
	RacketMass    float64
	Gravity       float64
	FallbackRatio float64
}

// DefaultEnergyOptions returns I=1.2, m=0.1, g=9.81 and a 0.65 fallback.
func DefaultEnergyOptions() EnergyOptions {
	return EnergyOptions{
		WaistInertia:  DefaultWaistInertia,
		RacketMass:    DefaultRacketMass,
		Gravity:       DefaultGravity,
		FallbackRatio: DefaultEnergyRatio,
	}
}

// EnergyProfile holds the instantaneous energy proxies and their ratio.
type EnergyProfile struct {
	Waist []float64 `json:"waist"`
	Wrist []float64 `json:"wrist"`
	Ratio float64   `json:"ratio"`
	// Fallback is set when Ratio is the fixed fallback value.
	Fallback bool `json:"fallback,omitempty"`
}

// ComputeEnergy derives the waist rotational energy 0.5·I·ω² from the
// waist gyro Z channel (deg/s) and the wrist translational energy 0.5·m·|v|²
// where v is the cumulative trapezoidal integral of the wrist acceleration
// (g, scaled by Gravity) with step dt seconds. The ratio is
// min(1, max(wrist)/max(waist)), or the fallback when either side is empty
// or the waist peak is zero.
func ComputeEnergy(waistGyroZ []float64, wristAcc []Vec3, dt float64, opts EnergyOptions) EnergyProfile {
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		dt = 1 / DefaultSampleRate
	}

	out := EnergyProfile{
		Waist: make([]float64, len(waistGyroZ)),
		Wrist: make([]float64, len(wristAcc)),
	}
	for i, gz := range waistGyroZ {
		w := gz * math.Pi / 180
		out.Waist[i] = 0.5 * opts.WaistInertia * w * w
	}

	var v Vec3
	for i, a := range wristAcc {
		if i > 0 {
			prev := wristAcc[i-1]
			for axis := 0; axis < 3; axis++ {
				v[axis] += 0.5 * dt * opts.Gravity * (prev[axis] + a[axis])
			}
		}
		speed := v.Norm()
		out.Wrist[i] = 0.5 * opts.RacketMass * speed * speed
	}

	out.Ratio = energyRatio(out.Waist, out.Wrist)
	if math.IsNaN(out.Ratio) {
		out.Ratio = opts.FallbackRatio
		out.Fallback = true
	}
	return out
}

func energyRatio(waist, wrist []float64) float64 {
	if len(waist) == 0 || len(wrist) == 0 {
		return math.NaN()
	}
	maxWaist := floats.Max(waist)
	maxWrist := floats.Max(wrist)
	if !(maxWaist > 0) || math.IsInf(maxWaist, 0) || math.IsNaN(maxWrist) {
		return math.NaN()
	}
	return math.Min(1, maxWrist/maxWaist)
}

// SampleInterval estimates the sampling step in seconds from the median
// spacing of the resolved times, falling back to 1/sampleRate.
func SampleInterval(times []time.Time, sampleRate float64) float64 {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	fallback := 1 / sampleRate

	var diffs stats.Float64Data
	var prev time.Time
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		if !prev.IsZero() {
			if d := t.Sub(prev).Seconds(); d > 0 {
				diffs = append(diffs, d)
			}
		}
		prev = t
	}
	if len(diffs) == 0 {
		return fallback
	}
	median, err := stats.Median(diffs)
	if err != nil || median <= 0 {
		return fallback
	}
	return median
}

// ROMProfile is the range of motion per joint in degrees.
type ROMProfile struct {
	Waist    float64 `json:"waist"`
	Shoulder float64 `json:"shoulder"`
	Wrist    float64 `json:"wrist"`
}

// romAxis is the angle axis read for each joint: waist Z, shoulder Y,
// wrist X.
var romAxis = map[SensorRole]int{
	RoleWaist:    2,
	RoleShoulder: 1,
	RoleWrist:    0,
}

// ComputeROM returns max-min of each joint's designated angle axis, 0 for
// joints without angle data.
func ComputeROM(angles map[SensorRole][]Vec3) ROMProfile {
	rom := func(role SensorRole) float64 {
		return valueRange(column(angles[role], romAxis[role]))
	}
	return ROMProfile{
		Waist:    rom(RoleWaist),
		Shoulder: rom(RoleShoulder),
		Wrist:    rom(RoleWrist),
	}
}

func valueRange(x []float64) float64 {
	finite := x[:0:0]
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0
	}
	return floats.Max(finite) - floats.Min(finite)
}
