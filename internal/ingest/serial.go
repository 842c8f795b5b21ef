package ingest

import (
	"context"

	"github.com/banshee-data/swing.report/internal/serialmux"
)

// RunSerial subscribes to the hub lines and ingests every sensor packet
// until ctx is done or the mux closes. Status and acknowledgement lines
// update hub.
func (in *Ingester) RunSerial(ctx context.Context, mux serialmux.SerialMuxInterface, hub *serialmux.HubState) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if hub != nil {
				handled, err := hub.HandleLine(line)
				if err != nil {
					logf("hub line: %v", err)
				}
				if handled {
					continue
				}
			} else if serialmux.ClassifyLine(line) != serialmux.EventTypeReading {
				continue
			}
			if err := in.HandleLine(ctx, []byte(line)); err != nil {
				logf("serial packet rejected: %v", err)
			}
		}
	}
}
