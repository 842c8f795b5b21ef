package serialmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

func TestNewReplaySerialMux_CyclesLines(t *testing.T) {
	lines := [][]byte{[]byte(`{"sensor_type":"wrist"}`), []byte("OK\n")}
	mux := NewReplaySerialMux(lines, time.Millisecond)
	defer mux.Close()

	_, ch := mux.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case line := <-ch:
			seen[line] = true
		case <-timeout:
			t.Fatalf("timeout, saw %v", seen)
		}
	}
	if !seen[`{"sensor_type":"wrist"}`] || !seen["OK"] {
		t.Errorf("unexpected lines %v", seen)
	}
}

func TestNewGeneratorSerialMux_EndsOnNil(t *testing.T) {
	mux := NewGeneratorSerialMux(time.Millisecond, func(seq int, _ time.Time) []byte {
		if seq >= 3 {
			return nil
		}
		return []byte(fmt.Sprintf("line %d", seq))
	})
	defer mux.Close()

	_, ch := mux.Subscribe()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	var got []string
	for {
		select {
		case line := <-ch:
			got = append(got, line)
			continue
		case err := <-done:
			if err != nil {
				t.Fatalf("Monitor: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Monitor did not return at end of stream")
		}
		break
	}
	if len(got) > 3 {
		t.Errorf("expected at most 3 lines, got %q", got)
	}
}

func TestMockSerialPort_CapturesCommands(t *testing.T) {
	mux := NewReplaySerialMux(nil, time.Hour)
	defer mux.Close()

	mux.Location = time.UTC
	mux.Now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	written := mux.port.Written()
	for _, cmd := range []string{"SYNC 100000000\n", "FMT JSON\n", "RATE 200\n"} {
		if !strings.Contains(written, cmd) {
			t.Errorf("missing %q in %q", cmd, written)
		}
	}
	if err := mux.port.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestTestableSerialPort_HubConversation(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddLines("OK FMT JSON", `{"sensor_type":"waist"}`+"\n")

	if _, err := port.Write([]byte("FMT JSON\nRATE 200\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := port.Commands(); len(got) != 2 || got[0] != "FMT JSON" || got[1] != "RATE 200" {
		t.Errorf("Commands() = %q", got)
	}

	data, err := io.ReadAll(port)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if want := "OK FMT JSON\n{\"sensor_type\":\"waist\"}\n"; string(data) != want {
		t.Errorf("read %q, want %q", data, want)
	}
	if n, err := port.Read(make([]byte, 8)); n != 0 || err != io.EOF {
		t.Errorf("drained Read = %d, %v; want io.EOF", n, err)
	}
}

func TestTestableSerialPort_OneShotErrors(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("framing error")
	port.WriteError = errors.New("tx overrun")

	if _, err := port.Read(make([]byte, 4)); err == nil || err.Error() != "framing error" {
		t.Errorf("first Read err = %v", err)
	}
	if _, err := port.Write([]byte("SYNC\n")); err == nil || err.Error() != "tx overrun" {
		t.Errorf("first Write err = %v", err)
	}
	if _, err := port.Write([]byte("SYNC\n")); err != nil {
		t.Errorf("second Write err = %v", err)
	}
	if got := port.Commands(); len(got) != 1 || got[0] != "SYNC" {
		t.Errorf("Commands() = %q", got)
	}
}

func TestTestableSerialPort_Closed(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddLines("STATUS")
	if err := port.SetReadTimeout(250 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := port.Close(); err != nil {
		t.Fatal(err)
	}

	if !port.Closed || port.ReadTimeout != 250*time.Millisecond {
		t.Errorf("port state: closed=%v timeout=%v", port.Closed, port.ReadTimeout)
	}
	if _, err := port.Read(make([]byte, 8)); err == nil {
		t.Error("expected error reading from closed port")
	}
	if _, err := port.Write([]byte("STATUS\n")); err == nil {
		t.Error("expected error writing to closed port")
	}
}

func TestSerialMux_OverTestablePort(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddLines(`{"sensor_type":"wrist","timestamp":"120000000"}`, "OK RATE 200")
	mux := NewSerialMux(port)
	defer mux.Close()

	_, ch := mux.Subscribe()
	go mux.Monitor(context.Background())

	var got []string
	for len(got) < 2 {
		select {
		case line := <-ch:
			got = append(got, line)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout, got %q", got)
		}
	}
	if got[1] != "OK RATE 200" {
		t.Errorf("lines = %q", got)
	}
}

func TestMockSerialPortFactory(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)

	if factory.LastCall() != nil {
		t.Error("expected no calls yet")
	}
	mode := &SerialPortMode{BaudRate: 9600, DataBits: 8}
	got, err := factory.Open("/dev/ttyUSB0", mode)
	if err != nil || got != port {
		t.Fatalf("Open = %v, %v", got, err)
	}

	factory.Error = errors.New("device busy")
	if _, err := factory.Open("/dev/ttyACM0", nil); err == nil {
		t.Error("expected configured error")
	}

	if len(factory.OpenCalls) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(factory.OpenCalls))
	}
	if factory.OpenCalls[0].Mode.BaudRate != 9600 {
		t.Errorf("first call mode %+v", factory.OpenCalls[0].Mode)
	}
	if last := factory.LastCall(); last == nil || last.Path != "/dev/ttyACM0" {
		t.Errorf("LastCall = %+v", last)
	}
}

func TestDefaultSerialPortMode(t *testing.T) {
	mode := DefaultSerialPortMode()
	want := SerialPortMode{BaudRate: DefaultBaudRate, DataBits: 8, Parity: NoParity, StopBits: OneStopBit}
	if *mode != want {
		t.Errorf("DefaultSerialPortMode() = %+v, want %+v", *mode, want)
	}
}
