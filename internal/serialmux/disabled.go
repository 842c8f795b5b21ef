package serialmux

import (
	"context"
	"net/http"
)

// DisabledSerialMux stands in for the receiver hub when the server runs
// with -disable-serial. Readings then arrive only over HTTP or MQTT.
// Commands are accepted and dropped; subscribers never see a line but
// their channels still close on Unsubscribe or Close.
type DisabledSerialMux struct {
	lines Fanout
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) { return d.lines.Subscribe() }

func (d *DisabledSerialMux) Unsubscribe(id string) { d.lines.Unsubscribe(id) }

func (d *DisabledSerialMux) SendCommand(string) error { return nil }

func (d *DisabledSerialMux) Initialize() error { return nil }

// Monitor blocks until ctx ends or the mux is closed.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.lines.Done():
		return nil
	}
}

func (d *DisabledSerialMux) Close() error {
	d.lines.Close()
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("receiver hub disabled; post readings to /api/readings or publish over MQTT\n"))
	})
}
