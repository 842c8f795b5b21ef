package swing

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSensorData is returned when a session has no usable readings.
	ErrNoSensorData = errors.New("no sensor data for session")
	// ErrNoTimedData means no reading had a resolvable timestamp. Analysis
	// still runs, with delays taken from sample indices.
	ErrNoTimedData = errors.New("no readings with a resolvable timestamp")
	// ErrUnknownRole is returned for a sensor_type outside Roles.
	ErrUnknownRole = errors.New("unknown sensor role")
	// ErrInvalidPayload is returned by DecodePayload for malformed vectors.
	ErrInvalidPayload = errors.New("invalid sensor payload")
)

// AnalysisError records which stage of an analysis run failed.
type AnalysisError struct {
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed at %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
