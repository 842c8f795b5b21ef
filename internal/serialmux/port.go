package serialmux

import (
	"io"
	"time"
)

// DefaultBaudRate is the UART speed of the ESP32 receiver hub firmware.
const DefaultBaudRate = 115200

// SerialPorter is the part of a serial port the mux needs. Tests substitute
// TestableSerialPort.
type SerialPorter interface {
	io.ReadWriteCloser
}

// TimeoutSerialPorter is implemented by ports that can bound a Read, which
// the connection probe relies on to give up on a silent hub.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// SerialPortMode is the line setting a port is opened with.
type SerialPortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// DefaultSerialPortMode is 115200 8N1, what the hub firmware expects.
func DefaultSerialPortMode() *SerialPortMode {
	return &SerialPortMode{BaudRate: DefaultBaudRate, DataBits: 8}
}

// SerialPortFactory opens ports; the API's connection probe and reload
// take one so tests never touch hardware.
type SerialPortFactory interface {
	Open(path string, mode *SerialPortMode) (SerialPorter, error)
}
