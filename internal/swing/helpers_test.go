package swing

import (
	"math"
	"time"
)

// testDay is the session start used across tests.
var testDay = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// squareSwing returns n samples of 40*sign(sin(2πt)) at the given period.
func squareSwing(n int, period time.Duration) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := (time.Duration(i) * period).Seconds()
		s := math.Sin(2 * math.Pi * t)
		switch {
		case s > 0:
			out[i] = 40
		case s < 0:
			out[i] = -40
		}
	}
	return out
}

// packedReadings builds readings for role whose device clock starts at
// start, carrying gyroZ on the Z gyro axis and packed timestamps.
func packedReadings(role SensorRole, start time.Time, period time.Duration, gyroZ []float64) []SensorReading {
	out := make([]SensorReading, len(gyroZ))
	for i, gz := range gyroZ {
		t := start.Add(time.Duration(i) * period)
		out[i] = SensorReading{
			Role:      role,
			Acc:       Vec3{0, 0, 1},
			Gyro:      Vec3{0, 0, gz},
			Angle:     Vec3{float64(i % 30), float64(i % 90), float64(i % 45)},
			Timestamp: RawTimestamp(EncodePacked(t)),
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
