package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmeex-community/breeze-core/internal/breezer"
	"github.com/atmeex-community/breeze-core/internal/cloud"
)

// deviceView is the REST shape of a discovered breezer.
type deviceView struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Model             string    `json:"model"`
	HasHumidifier     bool      `json:"has_humidifier"`
	SupportsAutoNanny bool      `json:"supports_auto_nanny"`
	FirstSeen         time.Time `json:"first_seen"`

	// State is present when the coordinator has reconciled the device
	// at least once.
	State *deviceStateView `json:"state,omitempty"`
}

// deviceStateView is the REST and WebSocket shape of a reconciled snapshot.
type deviceStateView struct {
	DeviceID string `json:"device_id"`
	Online   bool   `json:"online"`

	Power           bool    `json:"power"`
	FanSpeed        int     `json:"fan_speed"`
	Mode            string  `json:"mode"`
	TargetTemp      float64 `json:"target_temp"`
	HumidifierStage int     `json:"humidifier_stage"`

	RoomTemp     *float64 `json:"room_temp,omitempty"`
	RoomHumidity *int     `json:"room_humidity,omitempty"`

	AutoNanny bool `json:"auto_nanny"`
	SleepMode bool `json:"sleep_mode"`

	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
}

func newDeviceView(device breezer.Device) deviceView {
	return deviceView{
		ID:                device.ID,
		Name:              device.Name,
		Model:             string(device.Model),
		HasHumidifier:     device.HasHumidifier,
		SupportsAutoNanny: device.Model.SupportsAutoNanny(),
		FirstSeen:         device.FirstSeen,
	}
}

func newDeviceStateView(state breezer.DeviceState) deviceStateView {
	view := deviceStateView{
		DeviceID:        state.DeviceID,
		Online:          state.Online,
		Power:           state.Power,
		FanSpeed:        state.FanSpeed,
		Mode:            state.Mode.String(),
		TargetTemp:      state.TargetTemp,
		HumidifierStage: int(state.HumidifierStage),
		RoomHumidity:    state.RoomHumidity,
		AutoNanny:       state.AutoNanny,
		SleepMode:       state.SleepMode,
		ObservedAt:      state.ObservedAt,
		Source:          string(state.Source),
	}
	if state.RoomTemp != breezer.UnknownRoomTemp {
		temp := state.RoomTemp
		view.RoomTemp = &temp
	}
	return view
}

// handleListDevices returns all discovered devices with their latest
// reconciled state.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.coordinator.Devices()
	states := s.coordinator.States()

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		view := newDeviceView(d)
		if state, ok := states[d.ID]; ok {
			sv := newDeviceStateView(state)
			view.State = &sv
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	device, err := s.coordinator.Device(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	view := newDeviceView(device)
	if state, err := s.coordinator.State(id); err == nil {
		sv := newDeviceStateView(state)
		view.State = &sv
	}

	writeJSON(w, http.StatusOK, view)
}

// handleGetDeviceState returns only the reconciled state for a device.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := s.coordinator.State(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, newDeviceStateView(state))
}

// commandRequest is the body for POST /devices/{id}/command.
type commandRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// handleCommand validates and forwards a command to the coordinator.
//
// Responses:
//   - 202 with the optimistic state on success
//   - 422 when the value is out of domain or the cloud rejected it
//   - 404 when the device is unknown
//   - 502 when the cloud could not be reached
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	field, value, err := breezer.ParseCommandValue(req.Field, req.Value)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.coordinator.ExecuteCommand(r.Context(), id, field, value); err != nil {
		s.writeCommandError(w, err)
		return
	}

	state, err := s.coordinator.State(id)
	if err != nil {
		writeInternalError(w, "command accepted but state unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, newDeviceStateView(state))
}

// handleRefreshDevice forces an immediate single-device re-read.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.coordinator.RefreshDevice(r.Context(), id); err != nil {
		if errors.Is(err, breezer.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeUpstreamUnavailable(w, "device refresh failed")
		return
	}

	state, err := s.coordinator.State(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceStateView(state))
}

// writeCommandError maps coordinator errors onto HTTP statuses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var vErr *breezer.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeValidation(w, vErr.Error())
	case errors.Is(err, breezer.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case cloud.IsTransient(err):
		writeUpstreamUnavailable(w, "device cloud unreachable")
	default:
		writeInternalError(w, "command failed")
	}
}
