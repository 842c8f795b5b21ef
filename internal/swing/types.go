// Package swing implements the badminton swing analysis core. It turns the
// per-sensor IMU readings of one recording session into kinetic-chain
// delays, an energy-transfer ratio, joint range of motion and a scored
// report.
//
// Units are fixed across the package: acceleration in g, angular rate in
// degrees per second and orientation angles in degrees. Ingestion is
// responsible for converting device units before readings get here.
package swing

import (
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
)

// SensorRole is the logical mount position of a sensor on the player.
type SensorRole string

const (
	RoleWaist    SensorRole = "waist"
	RoleShoulder SensorRole = "shoulder"
	RoleWrist    SensorRole = "wrist"
	RoleRacket   SensorRole = "racket"
)

// Roles lists the known roles in kinetic-chain order.
var Roles = []SensorRole{RoleWaist, RoleShoulder, RoleWrist, RoleRacket}

// Valid reports whether r is one of the known roles.
func (r SensorRole) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRole normalises s and returns the matching role.
func ParseRole(s string) (SensorRole, error) {
	r := SensorRole(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Vec3 is one three-axis sample.
type Vec3 [3]float64

// Norm returns the Euclidean magnitude of v.
func (v Vec3) Norm() float64 {
	return floats.Norm(v[:], 2)
}

// SensorReading is one timestamped sample from one sensor role.
type SensorReading struct {
	Role  SensorRole `json:"sensor_type"`
	Acc   Vec3       `json:"acc"`
	Gyro  Vec3       `json:"gyro"`
	Angle Vec3       `json:"angle"`

	// Timestamp is the device-local timestamp exactly as received.
	Timestamp RawTimestamp `json:"timestamp,omitempty"`
	// ResolvedTime is set when the ingestion layer already decoded the
	// timestamp. It takes precedence over Timestamp.
	ResolvedTime *time.Time `json:"resolved_time,omitempty"`
}

// Session is the input to one analysis run.
type Session struct {
	ID string
	// Start anchors packed timestamp decoding: its calendar date in
	// Location is the reference date and it is the rollover pivot.
	Start    time.Time
	Location *time.Location
	// Readings are in arrival order.
	Readings []SensorReading
}

// magnitudes returns the norm of every vector in vs.
func magnitudes(vs []Vec3) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v.Norm()
	}
	return out
}

// column extracts one axis from vs.
func column(vs []Vec3, axis int) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v[axis]
	}
	return out
}
