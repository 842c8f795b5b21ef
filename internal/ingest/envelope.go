// Package ingest turns sensor packets arriving from the receiver hub or an
// MQTT broker into stored readings.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banshee-data/swing.report/internal/swing"
	"github.com/banshee-data/swing.report/internal/units"
)

// Envelope is one decoded sensor packet.
type Envelope struct {
	Device    string `json:"device"`
	SessionID string `json:"session_id,omitempty"`
	Reading   swing.SensorReading
}

// Decoder converts packet vectors from the device units to g and deg/s.
type Decoder struct {
	AccUnit  string
	GyroUnit string
}

// DecodeLine decodes a packet whose vectors are already in g and deg/s.
func DecodeLine(line []byte) (Envelope, error) {
	return Decoder{}.Decode(line)
}

// Decode parses a JSON packet of the form
// {"device":..,"sensor_type":..,"session_id":..,"timestamp":..,"acc":[..],"gyro":[..],"angle":[..]}.
// A packet without a device code is attributed to its sensor type.
func (d Decoder) Decode(line []byte) (Envelope, error) {
	var head struct {
		Device     string             `json:"device"`
		SensorType string             `json:"sensor_type"`
		SessionID  string             `json:"session_id"`
		Timestamp  swing.RawTimestamp `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", swing.ErrInvalidPayload, err)
	}
	role, err := swing.ParseRole(head.SensorType)
	if err != nil {
		return Envelope{}, err
	}
	payload, err := d.DecodePayload(line)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		Device:    strings.TrimSpace(head.Device),
		SessionID: strings.TrimSpace(head.SessionID),
		Reading:   payload.Reading(role, head.Timestamp),
	}
	if env.Device == "" {
		env.Device = string(role)
	}
	return env, nil
}

// DecodePayload decodes the acc/gyro/angle vectors of a packet and converts
// them to g and deg/s.
func (d Decoder) DecodePayload(data []byte) (swing.Payload, error) {
	payload, err := swing.DecodePayload(data)
	if err != nil {
		return swing.Payload{}, err
	}
	for i := range 3 {
		payload.Acc[i] = units.AccToG(payload.Acc[i], d.AccUnit)
		payload.Gyro[i] = units.GyroToDPS(payload.Gyro[i], d.GyroUnit)
	}
	return payload, nil
}
