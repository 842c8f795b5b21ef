package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// MockSerialPort is a SerialPorter whose input comes from a generator and
// whose written commands are captured for inspection.
type MockSerialPort struct {
	io.Reader
	pw *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	stop    chan struct{}
	once    sync.Once
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(p)
}

// Written returns every command written to the port so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *MockSerialPort) Close() error {
	m.once.Do(func() {
		close(m.stop)
		m.pw.Close()
	})
	return nil
}

// LineGenerator produces the seq-th hub line at now. A nil result ends the
// stream.
type LineGenerator func(seq int, now time.Time) []byte

// NewGeneratorSerialMux creates a SerialMux whose port emits one generated
// line per interval, for running the server without a receiver hub.
func NewGeneratorSerialMux(interval time.Duration, gen LineGenerator) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	port := &MockSerialPort{Reader: r, pw: w, stop: make(chan struct{})}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for seq := 0; ; seq++ {
			select {
			case now := <-ticker.C:
				line := gen(seq, now)
				if line == nil {
					return
				}
				if !bytes.HasSuffix(line, []byte("\n")) {
					line = append(line, '\n')
				}
				if _, err := w.Write(line); err != nil {
					return
				}
			case <-port.stop:
				return
			}
		}
	}()

	return NewSerialMux(port)
}

// NewReplaySerialMux replays fixture lines in a loop, one per interval.
func NewReplaySerialMux(lines [][]byte, interval time.Duration) *SerialMux[*MockSerialPort] {
	return NewGeneratorSerialMux(interval, func(seq int, _ time.Time) []byte {
		if len(lines) == 0 {
			return nil
		}
		return append([]byte(nil), lines[seq%len(lines)]...)
	})
}

// TestableSerialPort is a scripted receiver hub for tests. Reads drain the
// queued hub output and then report io.EOF; writes are kept so tests can
// check which commands the host sent.
type TestableSerialPort struct {
	mu      sync.Mutex
	pending bytes.Buffer
	sent    bytes.Buffer

	// ReadError and WriteError fail the next Read or Write once.
	ReadError  error
	WriteError error
	// Closed is set by Close.
	Closed bool
	// ReadTimeout records the last SetReadTimeout call.
	ReadTimeout time.Duration
}

var errPortClosed = errors.New("serial port closed")

// NewTestableSerialPort returns a port with nothing queued.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{}
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errPortClosed
	}
	if err := t.ReadError; err != nil {
		t.ReadError = nil
		return 0, err
	}
	return t.pending.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errPortClosed
	}
	if err := t.WriteError; err != nil {
		t.WriteError = nil
		return 0, err
	}
	return t.sent.Write(p)
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	t.Closed = true
	t.mu.Unlock()
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	t.ReadTimeout = timeout
	t.mu.Unlock()
	return nil
}

// AddReadData queues raw hub output.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	t.pending.Write(data)
	t.mu.Unlock()
}

// AddLines queues hub output one newline-terminated line at a time.
func (t *TestableSerialPort) AddLines(lines ...string) {
	for _, l := range lines {
		t.AddReadData([]byte(strings.TrimRight(l, "\n") + "\n"))
	}
}

// GetWrittenData returns a copy of everything written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.sent.Bytes())
}

// Commands splits the written data into the commands the host sent.
func (t *TestableSerialPort) Commands() []string {
	var cmds []string
	for _, l := range strings.Split(string(t.GetWrittenData()), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			cmds = append(cmds, l)
		}
	}
	return cmds
}

// MockSerialPortFactory hands out a fixed port and records every Open.
type MockSerialPortFactory struct {
	mu sync.Mutex

	Port  SerialPorter
	Error error
	// OpenCalls is appended to on every Open, including failed ones.
	OpenCalls []MockOpenCall
}

// MockOpenCall is one recorded Open.
type MockOpenCall struct {
	Path string
	Mode *SerialPortMode
}

func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

func (f *MockSerialPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Mode: mode})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open, or nil.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
