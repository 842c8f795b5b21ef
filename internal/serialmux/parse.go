package serialmux

import "strings"

const (
	EventTypeReading   = "reading"
	EventTypeHubStatus = "hub_status"
	EventTypeAck       = "ack"
	EventTypeUnknown   = "unknown"
)

// ClassifyLine inspects one hub line and returns its event type. Sensor
// packets carry a sensor_type key; other JSON objects are hub status
// reports; OK/ERR lines acknowledge commands.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "{") && strings.Contains(line, `"sensor_type"`):
		return EventTypeReading
	case strings.HasPrefix(line, "{"):
		return EventTypeHubStatus
	case line == "OK" || line == "ERR" || strings.HasPrefix(line, "OK ") || strings.HasPrefix(line, "ERR "):
		return EventTypeAck
	}
	return EventTypeUnknown
}
