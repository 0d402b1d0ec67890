package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atmeex-community/breeze-core/internal/breezer"
	"github.com/atmeex-community/breeze-core/internal/cloud"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/config"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/logging"
)

type executedCommand struct {
	deviceID string
	field    breezer.Field
	value    any
}

type mockCoordinator struct {
	mu         sync.Mutex
	devices    map[string]breezer.Device
	states     map[string]breezer.DeviceState
	diag       breezer.Diagnostics
	interval   time.Duration
	executed   []executedCommand
	execErr    error
	refreshErr error
	listeners  map[breezer.Subscription]breezer.Listener
	nextSub    breezer.Subscription
}

func newMockCoordinator() *mockCoordinator {
	return &mockCoordinator{
		devices:   make(map[string]breezer.Device),
		states:    make(map[string]breezer.DeviceState),
		interval:  30 * time.Second,
		listeners: make(map[breezer.Subscription]breezer.Listener),
	}
}

func (m *mockCoordinator) Devices() []breezer.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]breezer.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out
}

func (m *mockCoordinator) Device(id string) (breezer.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return breezer.Device{}, breezer.ErrDeviceNotFound
	}
	return d, nil
}

func (m *mockCoordinator) States() map[string]breezer.DeviceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]breezer.DeviceState, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out
}

func (m *mockCoordinator) State(id string) (breezer.DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return breezer.DeviceState{}, breezer.ErrDeviceNotFound
	}
	return s, nil
}

func (m *mockCoordinator) ExecuteCommand(_ context.Context, deviceID string, field breezer.Field, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.execErr != nil {
		return m.execErr
	}
	m.executed = append(m.executed, executedCommand{deviceID, field, value})
	return nil
}

func (m *mockCoordinator) RefreshDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshErr != nil {
		return m.refreshErr
	}
	if _, ok := m.devices[deviceID]; !ok {
		return breezer.ErrDeviceNotFound
	}
	return nil
}

func (m *mockCoordinator) Diagnostics() breezer.Diagnostics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diag
}

func (m *mockCoordinator) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

func (m *mockCoordinator) SetInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interval = config.ClampPollInterval(interval)
}

func (m *mockCoordinator) Subscribe(l breezer.Listener) breezer.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	m.listeners[m.nextSub] = l
	return m.nextSub
}

func (m *mockCoordinator) Unsubscribe(sub breezer.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, sub)
}

func (m *mockCoordinator) addDevice(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[id] = breezer.Device{ID: id, Name: name, Model: breezer.ModelStandard, FirstSeen: time.Now()}
	m.states[id] = breezer.DeviceState{
		DeviceID:   id,
		Power:      true,
		FanSpeed:   4,
		TargetTemp: 22.0,
		RoomTemp:   breezer.UnknownRoomTemp,
		Online:     true,
		ObservedAt: time.Now(),
		Source:     breezer.SourcePoll,
	}
}

func newTestServer(t *testing.T) (*Server, *mockCoordinator, http.Handler) {
	t.Helper()
	coord := newMockCoordinator()
	s, err := New(Deps{
		Config:      config.APIConfig{Host: "127.0.0.1", Port: 8086},
		WS:          config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:      logging.Default(),
		Coordinator: coord,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, coord, s.buildRouter()
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Coordinator: newMockCoordinator()}); err == nil {
		t.Error("expected error without logger")
	}
	if _, err := New(Deps{Logger: logging.Default()}); err == nil {
		t.Error("expected error without coordinator")
	}
}

func TestHandleHealth(t *testing.T) {
	_, _, handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("unexpected body: %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHandleListDevices(t *testing.T) {
	_, coord, handler := newTestServer(t)
	coord.addDevice("brz-2", "Office")
	coord.addDevice("brz-1", "Bedroom")

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Devices []deviceView `json:"devices"`
		Count   int          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 2 {
		t.Fatalf("expected 2 devices, got %d", body.Count)
	}
	if body.Devices[0].Name != "Bedroom" || body.Devices[1].Name != "Office" {
		t.Errorf("devices not sorted by name: %+v", body.Devices)
	}
	if body.Devices[0].State == nil || body.Devices[0].State.FanSpeed != 4 {
		t.Errorf("expected state attached: %+v", body.Devices[0].State)
	}
	if body.Devices[0].State.RoomTemp != nil {
		t.Error("room_temp should be omitted while unreported")
	}
}

func TestHandleGetDevice(t *testing.T) {
	_, coord, handler := newTestServer(t)
	coord.addDevice("brz-1", "Bedroom")

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/devices/brz-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view deviceView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.ID != "brz-1" || view.State == nil {
		t.Errorf("unexpected view: %+v", view)
	}
}

func TestHandleGetDeviceNotFound(t *testing.T) {
	_, _, handler := newTestServer(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/devices/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var apiErr Error
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if apiErr.Code != ErrCodeNotFound {
		t.Errorf("unexpected error code %q", apiErr.Code)
	}
}

func TestHandleGetDeviceState(t *testing.T) {
	_, coord, handler := newTestServer(t)
	coord.addDevice("brz-1", "Bedroom")

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/devices/brz-1/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var state deviceStateView
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if state.DeviceID != "brz-1" || !state.Online {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestHandleCommand(t *testing.T) {
	_, coord, handler := newTestServer(t)
	coord.addDevice("brz-1", "Bedroom")

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/devices/brz-1/command",
		`{"field":"fan_speed","value":6}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	coord.mu.Lock()
	executed := append([]executedCommand(nil), coord.executed...)
	coord.mu.Unlock()
	if len(executed) != 1 {
		t.Fatalf("expected 1 executed command, got %d", len(executed))
	}
	if executed[0].field != breezer.FieldFanSpeed || executed[0].value != 6 {
		t.Errorf("unexpected command: %+v", executed[0])
	}
}

func TestHandleCommandErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		execErr    error
		wantStatus int
	}{
		{
			name:       "malformed body",
			body:       "not json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"field":"warp_drive","value":1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "out of domain",
			body:       `{"field":"fan_speed","value":9}`,
			execErr:    &breezer.ValidationError{Field: breezer.FieldFanSpeed, Value: 9, Message: "out of range"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown device",
			body:       `{"field":"fan_speed","value":5}`,
			execErr:    breezer.ErrDeviceNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "cloud unreachable",
			body:       `{"field":"fan_speed","value":5}`,
			execErr:    &cloud.APIError{Action: "set params", Status: 503, Transient: true, Message: "bad gateway"},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, coord, handler := newTestServer(t)
			coord.addDevice("brz-1", "Bedroom")
			coord.execErr = tt.execErr

			rec := doRequest(t, handler, http.MethodPost, "/api/v1/devices/brz-1/command", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleRefreshDevice(t *testing.T) {
	_, coord, handler := newTestServer(t)
	coord.addDevice("brz-1", "Bedroom")

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/devices/brz-1/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/v1/devices/ghost/refresh", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleDiagnostics(t *testing.T) {
	_, coord, handler := newTestServer(t)
	coord.diag = breezer.Diagnostics{SuccessfulPolls: 12, FailedPolls: 3, Retries: 2, Reauths: 1, LastErrorClass: "api"}

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/diagnostics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Diagnostics  breezer.Diagnostics `json:"diagnostics"`
		PollInterval int                 `json:"poll_interval_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Diagnostics.SuccessfulPolls != 12 || body.Diagnostics.LastErrorClass != "api" {
		t.Errorf("unexpected diagnostics: %+v", body.Diagnostics)
	}
	if body.PollInterval != 30 {
		t.Errorf("expected 30s interval, got %d", body.PollInterval)
	}
}

func TestHandleSetPollInterval(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantStatus    int
		wantEffective int
		wantClamped   bool
	}{
		{"in range", `{"seconds":15}`, http.StatusOK, 15, false},
		{"below minimum", `{"seconds":1}`, http.StatusOK, 3, true},
		{"above maximum", `{"seconds":300}`, http.StatusOK, 60, true},
		{"zero", `{"seconds":0}`, http.StatusBadRequest, 0, false},
		{"malformed", `nope`, http.StatusBadRequest, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, handler := newTestServer(t)

			rec := doRequest(t, handler, http.MethodPut, "/api/v1/poll-interval", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var body struct {
				Seconds int  `json:"seconds"`
				Clamped bool `json:"clamped"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.Seconds != tt.wantEffective || body.Clamped != tt.wantClamped {
				t.Errorf("got seconds=%d clamped=%v, want seconds=%d clamped=%v",
					body.Seconds, body.Clamped, tt.wantEffective, tt.wantClamped)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	_, _, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://panel.local")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://panel.local" {
		t.Errorf("missing CORS origin header")
	}
}
