package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// PortOptions are the line settings for the receiver hub port, as given
// on the command line or in a reload request. Zero fields take the hub
// defaults.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

var parityCodes = map[string]string{
	"": "N", "N": "N", "NONE": "N",
	"E": "E", "EVEN": "E",
	"O": "O", "ODD": "O",
}

// Normalize fills defaults (115200 8N1) and canonicalises parity to N, E
// or O. Data bits outside 5..8, stop bits other than 1 or 2 and unknown
// parity names are errors.
func (o PortOptions) Normalize() (PortOptions, error) {
	n := o
	if n.BaudRate <= 0 {
		n.BaudRate = DefaultBaudRate
	}
	if n.DataBits == 0 {
		n.DataBits = 8
	}
	if n.StopBits == 0 {
		n.StopBits = 1
	}
	switch {
	case n.DataBits < 5 || n.DataBits > 8:
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", n.DataBits)
	case n.StopBits != 1 && n.StopBits != 2:
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", n.StopBits)
	}
	code, ok := parityCodes[strings.ToUpper(strings.TrimSpace(n.Parity))]
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	n.Parity = code
	return n, nil
}

// Equal reports whether both options open the port the same way. Invalid
// options equal nothing.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	return errA == nil && errB == nil && a == b
}

// SerialMode converts the port options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	return portMode(opts).serialMode()
}

// PortMode converts normalised options into a SerialPortMode.
func (o PortOptions) PortMode() (*SerialPortMode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return portMode(opts), nil
}

func portMode(opts PortOptions) *SerialPortMode {
	m := &SerialPortMode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	if opts.StopBits == 2 {
		m.StopBits = TwoStopBits
	}
	m.Parity = map[string]Parity{"E": EvenParity, "O": OddParity}[opts.Parity]
	return m
}

var (
	serialParity = map[Parity]serial.Parity{
		NoParity:   serial.NoParity,
		EvenParity: serial.EvenParity,
		OddParity:  serial.OddParity,
	}
	serialStopBits = map[StopBits]serial.StopBits{
		OneStopBit:  serial.OneStopBit,
		TwoStopBits: serial.TwoStopBits,
	}
)

// serialMode translates m for go.bug.st/serial.
func (m *SerialPortMode) serialMode() (*serial.Mode, error) {
	parity, ok := serialParity[m.Parity]
	if !ok {
		return nil, fmt.Errorf("unsupported parity %d", m.Parity)
	}
	stop, ok := serialStopBits[m.StopBits]
	if !ok {
		return nil, fmt.Errorf("unsupported stop bits %d", m.StopBits)
	}
	return &serial.Mode{BaudRate: m.BaudRate, DataBits: m.DataBits, Parity: parity, StopBits: stop}, nil
}
