package api

import (
	"net/http"
	"strings"

	"github.com/banshee-data/swing.report/internal/db"
	"github.com/banshee-data/swing.report/internal/httputil"
	"github.com/banshee-data/swing.report/internal/swing"
)

type registerDeviceRequest struct {
	DeviceCode string `json:"device_code"`
	SensorType string `json:"sensor_type"`
	Address    string `json:"ip_address"`
}

// registerDevice records a sensor node and the address it accepts
// start/stop commands on.
func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req registerDeviceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	d := &db.Device{
		Code:    strings.TrimSpace(req.DeviceCode),
		Address: strings.TrimSpace(req.Address),
	}
	if d.Code == "" {
		httputil.BadRequest(w, "device_code required")
		return
	}
	if req.SensorType != "" {
		role, err := swing.ParseRole(req.SensorType)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		d.SensorType = string(role)
	}

	if err := s.db.UpsertDevice(r.Context(), d); err != nil {
		writeStoreError(w, err)
		return
	}
	s.Notifier.Register(d.Code, d.Address)

	stored, err := s.db.GetDevice(r.Context(), d.Code)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"msg":    "device registered",
		"device": stored,
	})
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	devices, err := s.db.ListDevices(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if devices == nil {
		devices = []db.Device{}
	}
	httputil.WriteJSONOK(w, map[string]any{"devices": devices})
}
