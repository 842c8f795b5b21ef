package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/httputil"
	"github.com/banshee-data/swing.report/internal/monitoring"
	"github.com/banshee-data/swing.report/internal/registry"
)

var notifyLogf = monitoring.Component("notifier")

// DeviceCommand is a collection command understood by the sensor nodes.
type DeviceCommand string

const (
	CommandStart DeviceCommand = "start"
	CommandStop  DeviceCommand = "stop"
)

func (c DeviceCommand) path() string {
	return "/" + string(c) + "_collection"
}

// DefaultNotifyTimeout bounds each device request.
const DefaultNotifyTimeout = 5 * time.Second

// DeviceNotifier posts start and stop commands to the HTTP address each
// sensor node registered with.
type DeviceNotifier struct {
	Client  httputil.HTTPClient
	Timeout time.Duration

	addresses *registry.Registry[string, string]
}

func NewDeviceNotifier(client httputil.HTTPClient) *DeviceNotifier {
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{})
	}
	return &DeviceNotifier{
		Client:    client,
		Timeout:   DefaultNotifyTimeout,
		addresses: registry.New[string, string](),
	}
}

// Register records the address of a device. An empty address forgets it.
func (n *DeviceNotifier) Register(code, address string) {
	address = strings.TrimSpace(address)
	if address == "" {
		n.addresses.Remove(code)
		return
	}
	n.addresses.Register(code, address)
}

// Load registers every stored device that has an address.
func (n *DeviceNotifier) Load(devices []db.Device) {
	for _, d := range devices {
		if d.Address != "" {
			n.Register(d.Code, d.Address)
		}
	}
}

// Devices returns the registered device codes in order.
func (n *DeviceNotifier) Devices() []string { return n.addresses.Keys() }

// Notification is the outcome of one device request.
type Notification struct {
	DeviceCode string `json:"device_code"`
	Address    string `json:"address"`
	Error      string `json:"error,omitempty"`
}

type commandPayload struct {
	Command    DeviceCommand `json:"command"`
	SessionID  string        `json:"session_id"`
	DeviceCode string        `json:"device_code"`
}

// Notify sends cmd to every registered device in device code order. A
// failing device does not stop the others.
func (n *DeviceNotifier) Notify(ctx context.Context, cmd DeviceCommand, sessionID string) []Notification {
	var out []Notification
	for _, code := range n.addresses.Keys() {
		addr, ok := n.addresses.Get(code)
		if !ok {
			continue
		}
		res := Notification{DeviceCode: code, Address: addr}
		if err := n.post(ctx, deviceURL(addr, cmd.path()), commandPayload{
			Command:    cmd,
			SessionID:  sessionID,
			DeviceCode: code,
		}); err != nil {
			res.Error = err.Error()
			notifyLogf("device %s: %s failed: %v", code, cmd, err)
		}
		out = append(out, res)
	}
	return out
}

func (n *DeviceNotifier) post(ctx context.Context, url string, payload commandPayload) error {
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	return httputil.PostJSON(ctx, n.Client, url, payload)
}

func deviceURL(address, path string) string {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return strings.TrimRight(address, "/") + path
}
