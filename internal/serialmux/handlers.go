package serialmux

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/swing.report/internal/monitoring"
)

var hubLogf = monitoring.Component("hub")

// HubState holds the latest status values and command acknowledgement
// reported by the receiver hub.
type HubState struct {
	mu        sync.Mutex
	values    map[string]any
	lastAck   string
	ackErrors int
	updated   time.Time
}

func NewHubState() *HubState {
	return &HubState{values: make(map[string]any)}
}

// HubSnapshot is a point-in-time copy of HubState.
type HubSnapshot struct {
	Values    map[string]any `json:"values"`
	LastAck   string         `json:"last_ack,omitempty"`
	AckErrors int            `json:"ack_errors"`
	Updated   *time.Time     `json:"updated,omitempty"`
}

// HandleStatus merges a JSON status line into the state.
func (h *HubState) HandleStatus(payload string) error {
	var values map[string]any
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return fmt.Errorf("failed to unmarshal hub status: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	maps.Copy(h.values, values)
	h.updated = time.Now()
	return nil
}

// HandleAck records an OK/ERR acknowledgement line.
func (h *HubState) HandleAck(line string) {
	line = strings.TrimSpace(line)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastAck = line
	h.updated = time.Now()
	if strings.HasPrefix(line, "ERR") {
		h.ackErrors++
		hubLogf("command rejected: %s", line)
	}
}

// Snapshot returns a copy of the current state.
func (h *HubState) Snapshot() HubSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := HubSnapshot{Values: maps.Clone(h.values), LastAck: h.lastAck, AckErrors: h.ackErrors}
	if !h.updated.IsZero() {
		t := h.updated
		s.Updated = &t
	}
	return s
}

// HandleLine routes a non-reading hub line into the state. It returns false
// for sensor readings, which the caller decodes itself.
func (h *HubState) HandleLine(line string) (handled bool, err error) {
	switch ClassifyLine(line) {
	case EventTypeReading:
		return false, nil
	case EventTypeHubStatus:
		return true, h.HandleStatus(line)
	case EventTypeAck:
		h.HandleAck(line)
		return true, nil
	default:
		hubLogf("unknown line: %s", line)
		return true, nil
	}
}
