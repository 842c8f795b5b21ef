package ingest

import (
	"encoding/json"
	"math"
	"time"

	"github.com/banshee-data/swing.report/internal/swing"
)

// Synthetic produces hub lines for a player swinging every Period, with
// each sensor in the kinetic chain peaking Lag after the previous one.
// Lines rotate through the roles so every role is sampled at the same
// rate.
type Synthetic struct {
	Location *time.Location
	Period   time.Duration
	Lag      time.Duration
}

func NewSynthetic(loc *time.Location) *Synthetic {
	return &Synthetic{Location: loc, Period: 2 * time.Second, Lag: 40 * time.Millisecond}
}

// syntheticPacket mirrors the hub's JSON line format.
type syntheticPacket struct {
	Device     string     `json:"device"`
	SensorType string     `json:"sensor_type"`
	Timestamp  string     `json:"timestamp"`
	Acc        swing.Vec3 `json:"acc"`
	Gyro       swing.Vec3 `json:"gyro"`
	Angle      swing.Vec3 `json:"angle"`
}

// Line returns the seq-th packet at now. It matches
// serialmux.LineGenerator.
func (s *Synthetic) Line(seq int, now time.Time) []byte {
	idx := seq % len(swing.Roles)
	role := swing.Roles[idx]
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	// phase within the current swing, shifted by the role's place in the chain
	offset := now.Sub(now.Truncate(s.Period)) - time.Duration(idx)*s.Lag
	x := offset.Seconds() - 0.5
	pulse := math.Exp(-x * x / (2 * 0.03 * 0.03))

	gyroPeak := 300 + 150*float64(idx)
	accPeak := 1.5 + 2*float64(idx)
	p := syntheticPacket{
		Device:     "sim-" + string(role),
		SensorType: string(role),
		Timestamp:  swing.EncodePacked(now.In(loc)),
		Acc:        swing.Vec3{accPeak * pulse, 0.1 * pulse, 1},
		Gyro:       swing.Vec3{gyroPeak * pulse * 0.3, gyroPeak * pulse * 0.5, gyroPeak * pulse},
		Angle:      swing.Vec3{20 * pulse, 35 * pulse, 45 * pulse},
	}
	b, _ := json.Marshal(p)
	return b
}
