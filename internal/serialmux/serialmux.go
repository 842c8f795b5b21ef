// Package serialmux owns the serial link to the ESP32 receiver hub: one
// reader fans the hub's lines out to any number of subscribers, and
// commands from several writers are serialised onto the port.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/swing.report/internal/swing"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// DefaultSampleRateHz is the per-sensor output rate requested from the hub.
const DefaultSampleRateHz = 200

// SerialMux owns one hub port: a single reader fans its lines out to
// subscribers and writers are serialised so commands never interleave.
type SerialMux[T SerialPorter] struct {
	port    T
	lines   Fanout
	writeMu sync.Mutex

	// Now and Location drive the hub clock sync.
	Now          func() time.Time
	Location     *time.Location
	SampleRateHz int
}

// SerialMuxInterface is what the server needs from a hub connection. It
// is implemented by SerialMux, DisabledSerialMux and the API's reloadable
// port manager.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel of hub lines. The channel is
	// closed by Unsubscribe(id) or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
	// Initialize sends the clock sync and output format commands.
	Initialize() error
	// Monitor reads the hub until ctx ends, the port fails or Close.
	Monitor(context.Context) error
	Close() error
	// AttachAdminRoutes mounts the hub console under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux wraps port. The clock sync defaults to local time.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:         port,
		Now:          time.Now,
		Location:     time.Local,
		SampleRateHz: DefaultSampleRateHz,
	}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) { return s.lines.Subscribe() }

func (s *SerialMux[T]) Unsubscribe(id string) { s.lines.Unsubscribe(id) }

// InitCommands returns the hub setup sequence for the given instant: clock
// sync in packed HHMMSSmmm local time, JSON line output and the sample rate.
func InitCommands(now time.Time, loc *time.Location, rateHz int) []string {
	if loc == nil {
		loc = time.Local
	}
	if rateHz <= 0 {
		rateHz = DefaultSampleRateHz
	}
	return []string{
		"SYNC " + swing.EncodePacked(now.In(loc)),
		"FMT JSON",
		fmt.Sprintf("RATE %d", rateHz),
	}
}

// Initialize syncs the hub clock so that sensor timestamps decode against
// the session date, and selects the JSON output format and sample rate.
func (s *SerialMux[T]) Initialize() error {
	for _, command := range InitCommands(s.Now(), s.Location, s.SampleRateHz) {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send init command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand writes one newline-terminated command to the hub.
func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := io.WriteString(s.port, command)
	if err != nil {
		return err
	}
	if n < len(command) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(command))
	}
	return nil
}

// Monitor publishes every non-blank hub line, with any trailing CR
// removed, until ctx ends, the port reports EOF or an error, or the mux is
// closed.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() { errc <- scanLines(ctx, s.port, lines) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.lines.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if line = strings.TrimRight(line, "\r"); line != "" {
				s.lines.Publish(line)
			}
		}
	}
}

// scanLines sends each line read from r to out. It returns nil at EOF.
func scanLines(ctx context.Context, r io.Reader, out chan<- string) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

// Close closes subscriber channels and the port. Later calls do nothing.
func (s *SerialMux[T]) Close() error {
	if !s.lines.Close() {
		return nil
	}
	return s.port.Close()
}
