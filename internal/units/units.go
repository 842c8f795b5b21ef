// Package units provides shared constants, validation and conversion for
// IMU sensor units.
package units

import "strings"

// Acceleration units
const (
	G    = "g"
	MPS2 = "mps2"
)

// Angular rate units
const (
	DPS  = "dps"
	RADS = "rads"
)

// StandardGravity converts g to m/s².
const StandardGravity = 9.80665

// ValidAccUnits and ValidGyroUnits list the accepted unit names.
var (
	ValidAccUnits  = []string{G, MPS2}
	ValidGyroUnits = []string{DPS, RADS}
)

// IsValidAcc checks if unit is a known acceleration unit.
func IsValidAcc(unit string) bool {
	return contains(ValidAccUnits, unit)
}

// IsValidGyro checks if unit is a known angular rate unit.
func IsValidGyro(unit string) bool {
	return contains(ValidGyroUnits, unit)
}

// GetValidUnitsString returns the accepted unit names for error messages
func GetValidUnitsString() string {
	return "acc: " + strings.Join(ValidAccUnits, ", ") + "; gyro: " + strings.Join(ValidGyroUnits, ", ")
}

// AccToG converts an acceleration component from unit to g. Unknown units
// are assumed to be g already.
func AccToG(v float64, unit string) float64 {
	switch unit {
	case MPS2:
		return v / StandardGravity
	default:
		return v
	}
}

// GyroToDPS converts an angular rate component from unit to degrees per
// second. Unknown units are assumed to be deg/s already.
func GyroToDPS(v float64, unit string) float64 {
	switch unit {
	case RADS:
		return v * 180 / 3.141592653589793
	default:
		return v
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
