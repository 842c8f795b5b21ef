package swing

import (
	"encoding/json"
	"fmt"
	"math"
)

// Payload is the vector part of a sensor packet, as stored alongside each
// reading.
type Payload struct {
	Acc   Vec3 `json:"acc"`
	Gyro  Vec3 `json:"gyro"`
	Angle Vec3 `json:"angle"`
}

// DecodePayload validates a packet of the form
// {"acc":[x,y,z],"gyro":[x,y,z],"angle":[x,y,z]}. All three keys are
// required; arrays shorter than three are zero-filled and longer ones are
// rejected, as are non-finite values.
func DecodePayload(data []byte) (Payload, error) {
	var raw struct {
		Acc   *[]float64 `json:"acc"`
		Gyro  *[]float64 `json:"gyro"`
		Angle *[]float64 `json:"angle"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var p Payload
	for _, f := range []struct {
		name string
		src  *[]float64
		dst  *Vec3
	}{
		{"acc", raw.Acc, &p.Acc},
		{"gyro", raw.Gyro, &p.Gyro},
		{"angle", raw.Angle, &p.Angle},
	} {
		if f.src == nil {
			return Payload{}, fmt.Errorf("%w: missing %s", ErrInvalidPayload, f.name)
		}
		vals := *f.src
		if len(vals) > 3 {
			return Payload{}, fmt.Errorf("%w: %s has %d components", ErrInvalidPayload, f.name, len(vals))
		}
		for i, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Payload{}, fmt.Errorf("%w: %s[%d] is not finite", ErrInvalidPayload, f.name, i)
			}
			f.dst[i] = v
		}
	}
	return p, nil
}

// Reading attaches a role and raw timestamp to the payload.
func (p Payload) Reading(role SensorRole, ts RawTimestamp) SensorReading {
	return SensorReading{
		Role:      role,
		Acc:       p.Acc,
		Gyro:      p.Gyro,
		Angle:     p.Angle,
		Timestamp: ts,
	}
}

// PayloadOf returns the vector part of r.
func PayloadOf(r SensorReading) Payload {
	return Payload{Acc: r.Acc, Gyro: r.Gyro, Angle: r.Angle}
}
