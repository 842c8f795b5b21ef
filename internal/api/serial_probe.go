package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/swing.report/internal/httputil"
	"github.com/banshee-data/swing.report/internal/ingest"
	"github.com/banshee-data/swing.report/internal/serialmux"
)

// SerialProbeRequest is the body of POST /api/serial/test.
type SerialProbeRequest struct {
	PortPath string `json:"port_path"`
	serialmux.PortOptions
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SerialProbeResponse reports what a receiver hub sent back during a probe.
type SerialProbeResponse struct {
	Success        bool     `json:"success"`
	PortPath       string   `json:"port_path"`
	BaudRate       int      `json:"baud_rate"`
	TestDurationMS int64    `json:"test_duration_ms"`
	BytesReceived  int      `json:"bytes_received,omitempty"`
	Lines          int      `json:"lines"`
	SensorPackets  int      `json:"sensor_packets"`
	SensorTypes    []string `json:"sensor_types,omitempty"`
	Acks           []string `json:"acks,omitempty"`
	SampleData     string   `json:"sample_data,omitempty"`
	Error          string   `json:"error,omitempty"`
	Message        string   `json:"message"`
	Suggestion     string   `json:"suggestion,omitempty"`
}

// SerialDeviceInfo represents information about a discovered serial device
type SerialDeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
	InUse        bool   `json:"in_use"`
}

// maxProbeLines stops a probe early once enough of the stream was seen.
const maxProbeLines = 50

// handleSerialTest handles POST /api/serial/test
func (s *Server) handleSerialTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req SerialProbeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	if req.PortPath == "" {
		httputil.BadRequest(w, "port_path is required")
		return
	}
	if !isValidPortPath(req.PortPath) {
		httputil.BadRequest(w, "invalid port path: must start with /dev/tty, /dev/cu. or /dev/serial")
		return
	}
	if req.PortPath == s.hubPortPath() {
		httputil.Conflict(w, "port is in use by the running receiver hub")
		return
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 2
	}

	// a failed probe is still a successful API call
	httputil.WriteJSONOK(w, probeSerialPort(s.PortFactory, req))
}

func isValidPortPath(path string) bool {
	for _, prefix := range []string{"/dev/tty", "/dev/cu.", "/dev/serial"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// probeSerialPort opens the port, asks the hub for JSON output and reads
// what it sends until the timeout, EOF or maxProbeLines.
func probeSerialPort(factory serialmux.SerialPortFactory, req SerialProbeRequest) SerialProbeResponse {
	start := time.Now()
	resp := SerialProbeResponse{PortPath: req.PortPath, Message: "serial port test failed"}
	finish := func() SerialProbeResponse {
		resp.TestDurationMS = time.Since(start).Milliseconds()
		return resp
	}

	opts, err := req.PortOptions.Normalize()
	if err != nil {
		resp.Error = err.Error()
		resp.Suggestion = "Parity must be one of: N (None), E (Even), O (Odd)"
		return finish()
	}
	resp.BaudRate = opts.BaudRate
	mode, err := opts.PortMode()
	if err != nil {
		resp.Error = err.Error()
		return finish()
	}

	port, err := factory.Open(req.PortPath, mode)
	if err != nil {
		resp.Error = fmt.Sprintf("failed to open port: %v", err)
		resp.Suggestion = getSuggestionForError(err)
		return finish()
	}
	defer port.Close()

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if tp, ok := port.(serialmux.TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(timeout); err != nil {
			logf("probe %s: failed to set read timeout: %v", req.PortPath, err)
		}
	}
	if _, err := port.Write([]byte("FMT JSON\n")); err != nil {
		resp.Error = fmt.Sprintf("failed to write to port: %v", err)
		resp.Suggestion = getSuggestionForError(err)
		return finish()
	}

	lines, n, readErr := readProbeLines(port, time.Now().Add(timeout))
	resp.BytesReceived = n
	roles := map[string]bool{}
	for _, line := range lines {
		resp.Lines++
		switch serialmux.ClassifyLine(line) {
		case serialmux.EventTypeReading:
			if env, err := ingest.DecodeLine([]byte(line)); err == nil {
				resp.SensorPackets++
				roles[string(env.Reading.Role)] = true
			}
		case serialmux.EventTypeAck:
			resp.Acks = append(resp.Acks, line)
		}
		if resp.SampleData == "" {
			resp.SampleData = line
			if len(resp.SampleData) > 100 {
				resp.SampleData = resp.SampleData[:100] + "..."
			}
		}
	}
	for role := range roles {
		resp.SensorTypes = append(resp.SensorTypes, role)
	}
	sort.Strings(resp.SensorTypes)

	switch {
	case n == 0 && readErr != nil:
		resp.Error = fmt.Sprintf("failed to read from port: %v", readErr)
		resp.Suggestion = getSuggestionForError(readErr)
	case n == 0:
		resp.Error = "no response from device"
		resp.Suggestion = fmt.Sprintf("The hub may be at a different baud rate. It normally runs at %d. Ensure it is powered on.", serialmux.DefaultBaudRate)
	case resp.SensorPackets == 0:
		resp.Success = true
		resp.Message = "hub responded but sent no sensor packets"
		resp.Suggestion = "Check that the sensor nodes are paired with the hub and powered on."
	default:
		resp.Success = true
		resp.Message = "serial port communication successful"
	}
	return finish()
}

func readProbeLines(port io.Reader, deadline time.Time) ([]string, int, error) {
	var (
		lines   []string
		pending []byte
		total   int
	)
	buf := make([]byte, 512)
	for len(lines) < maxProbeLines && time.Now().Before(deadline) {
		n, err := port.Read(buf)
		total += n
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			if line := strings.TrimSpace(string(pending[:i])); line != "" {
				lines = append(lines, line)
			}
			pending = pending[i+1:]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return lines, total, err
		}
		if n == 0 {
			// read timeout
			break
		}
	}
	if line := strings.TrimSpace(string(pending)); line != "" && len(lines) < maxProbeLines {
		lines = append(lines, line)
	}
	return lines, total, nil
}

// getSuggestionForError provides helpful suggestions based on error type
func getSuggestionForError(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "no such file") || strings.Contains(errStr, "not found") {
		return "Check that the hub is connected and appears in /dev/"
	}

	if strings.Contains(errStr, "permission denied") {
		return "Run: sudo usermod -a -G dialout $USER && sudo reboot"
	}

	if strings.Contains(errStr, "resource busy") || strings.Contains(errStr, "device busy") {
		return "Another process may be using the port. Stop other applications using this serial port."
	}

	return "Check device connection and permissions"
}

// handleSerialDevices handles GET /api/serial/devices
func (s *Server) handleSerialDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ports, err := s.ListPorts()
	if err != nil {
		logf("error enumerating serial ports: %v", err)
		httputil.InternalServerError(w, "failed to enumerate serial ports")
		return
	}

	inUse := s.hubPortPath()
	devices := []SerialDeviceInfo{}
	for _, portPath := range ports {
		devices = append(devices, SerialDeviceInfo{
			PortPath:     portPath,
			FriendlyName: getFriendlyName(portPath),
			InUse:        portPath == inUse,
		})
	}
	httputil.WriteJSONOK(w, devices)
}

// getFriendlyName generates a user-friendly name for a serial port
func getFriendlyName(portPath string) string {
	parts := strings.Split(portPath, "/")
	deviceName := parts[len(parts)-1]
	if deviceName == "" {
		return portPath
	}

	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyACM"):
		return fmt.Sprintf("USB CDC Device (%s)", deviceName)
	case strings.HasPrefix(deviceName, "cu.usbserial"), strings.HasPrefix(deviceName, "cu.SLAB"):
		return fmt.Sprintf("ESP32 USB-UART Bridge (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyAMA"):
		return fmt.Sprintf("Raspberry Pi Serial (%s)", deviceName)
	default:
		return deviceName
	}
}

// defaultListPorts enumerates ports through go.bug.st/serial.
func defaultListPorts() ([]string, error) {
	return serial.GetPortsList()
}
