package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atmeex-community/breeze-core/internal/infrastructure/config"
)

// testLogger discards all output.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func newTestClient(baseURL string) *Client {
	c := New(config.CloudConfig{BaseURL: baseURL, RequestTimeout: 5}, testLogger{})
	// Shrink backoff so retry tests run fast.
	c.retryBase = time.Millisecond
	c.retryMax = 4 * time.Millisecond
	return c
}

func signinHandler(token string, calls *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if body["grant_type"] != "basic" {
			http.Error(w, "bad grant_type", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": token,
			"token_type":   "Bearer",
		})
	}
}

func TestLoginStoresToken(t *testing.T) {
	var signins atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signinHandler("tok-1", &signins))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Login(context.Background(), "a@b.c", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	token, ok := c.BearerToken()
	if !ok || token != "tok-1" {
		t.Errorf("BearerToken() = %q, %v, want tok-1, true", token, ok)
	}
	if got := signins.Load(); got != 1 {
		t.Errorf("signin calls = %d, want 1", got)
	}
}

func TestLoginRejectedCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Login(context.Background(), "a@b.c", "wrong")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Login() error = %v, want *AuthError", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("AuthError.Status = %d, want 401", authErr.Status)
	}
	if got := c.Retries(); got != 0 {
		t.Errorf("Retries() = %d, want 0 (auth failures are not retried)", got)
	}
}

func TestSingleReauthOn401(t *testing.T) {
	var signins atomic.Int64
	tokens := []string{"tok-stale", "tok-fresh"}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", func(w http.ResponseWriter, _ *http.Request) {
		n := signins.Add(1)
		idx := int(n) - 1
		if idx >= len(tokens) {
			idx = len(tokens) - 1
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": tokens[idx]})
	})
	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-fresh" {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"id": 42, "name": "Bedroom", "online": true}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Login(context.Background(), "a@b.c", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	devices, err := c.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "42" {
		t.Fatalf("GetDevices() = %+v, want one device with ID 42", devices)
	}
	if got := signins.Load(); got != 2 {
		t.Errorf("signin calls = %d, want 2 (initial login + one re-auth)", got)
	}
	if got := c.Reauths(); got != 1 {
		t.Errorf("Reauths() = %d, want 1", got)
	}
}

func TestSecondAuthFailureSurfacesAuthError(t *testing.T) {
	var signins, deviceCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signinHandler("tok-any", &signins))
	mux.HandleFunc("/devices", func(w http.ResponseWriter, _ *http.Request) {
		deviceCalls.Add(1)
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Login(context.Background(), "a@b.c", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	_, err := c.GetDevices(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("GetDevices() error = %v, want *AuthError", err)
	}
	if got := signins.Load(); got != 2 {
		t.Errorf("signin calls = %d, want 2 (no re-auth loop)", got)
	}
	if got := deviceCalls.Load(); got != 2 {
		t.Errorf("device calls = %d, want 2 (original + one post-reauth retry)", got)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var signins, deviceCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signinHandler("tok-1", &signins))
	mux.HandleFunc("/devices", func(w http.ResponseWriter, _ *http.Request) {
		if deviceCalls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"items": [{"id": 7, "name": "Office"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Login(context.Background(), "a@b.c", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	devices, err := c.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "7" {
		t.Fatalf("GetDevices() = %+v, want one device with ID 7", devices)
	}
	if got := c.Retries(); got != 2 {
		t.Errorf("Retries() = %d, want 2", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var signins, paramCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signinHandler("tok-1", &signins))
	mux.HandleFunc("/devices/42/params", func(w http.ResponseWriter, _ *http.Request) {
		paramCalls.Add(1)
		http.Error(w, "value out of range", http.StatusUnprocessableEntity)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Login(context.Background(), "a@b.c", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	err := c.SetFanSpeed(context.Background(), "42", 5)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("SetFanSpeed() error = %v, want *APIError", err)
	}
	if apiErr.Transient {
		t.Error("APIError.Transient = true, want false for 422")
	}
	if !IsRejected(err) {
		t.Error("IsRejected() = false, want true for 422")
	}
	if got := paramCalls.Load(); got != 1 {
		t.Errorf("param calls = %d, want 1 (4xx is not retried)", got)
	}
}

func TestGetDevicesNormalization(t *testing.T) {
	var signins atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signinHandler("tok-1", &signins))
	mux.HandleFunc("/devices", func(w http.ResponseWriter, _ *http.Request) {
		// Device powered on, fan not yet echoed in condition, target
		// temperature only in settings.
		w.Write([]byte(`[{
			"id": 42,
			"name": "Bedroom",
			"model": "babycare_forever",
			"online": true,
			"condition": {"pwr_on": true, "fan_speed": 0, "temp_room": 215, "hum_room": 40},
			"settings": {"u_fan_speed": 4, "u_temp_room": 230, "u_damp_pos": 1, "u_hum_stg": 2}
		}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Login(context.Background(), "a@b.c", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	devices, err := c.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}

	d := devices[0]
	if d.Model != "babycare_forever" {
		t.Errorf("Model = %q, want babycare_forever", d.Model)
	}
	if d.State.Power == nil || !*d.State.Power {
		t.Error("Power should be true from condition")
	}
	if d.State.FanSpeed == nil || *d.State.FanSpeed != 4 {
		t.Errorf("FanSpeed = %v, want 4 (requested speed masks reported 0 while powered on)", d.State.FanSpeed)
	}
	if d.State.TargetTempDeci == nil || *d.State.TargetTempDeci != 230 {
		t.Errorf("TargetTempDeci = %v, want 230 from settings", d.State.TargetTempDeci)
	}
	if d.State.RoomTempDeci == nil || *d.State.RoomTempDeci != 215 {
		t.Errorf("RoomTempDeci = %v, want 215 from condition", d.State.RoomTempDeci)
	}
	if d.State.RoomHumidity == nil || *d.State.RoomHumidity != 40 {
		t.Errorf("RoomHumidity = %v, want 40", d.State.RoomHumidity)
	}
	if d.State.DamperPos == nil || *d.State.DamperPos != 1 {
		t.Errorf("DamperPos = %v, want 1 from settings", d.State.DamperPos)
	}
	if d.State.HumStage == nil || *d.State.HumStage != 2 {
		t.Errorf("HumStage = %v, want 2 from settings", d.State.HumStage)
	}
}

func TestSetTargetTemperatureSendsDeciDegrees(t *testing.T) {
	var signins atomic.Int64
	var gotBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/signin", signinHandler("tok-1", &signins))
	mux.HandleFunc("/devices/42/params", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header missing")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Login(context.Background(), "a@b.c", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if err := c.SetTargetTemperature(context.Background(), "42", 21.5); err != nil {
		t.Fatalf("SetTargetTemperature() error = %v", err)
	}
	if got, ok := gotBody["u_temp_room"].(float64); !ok || got != 215 {
		t.Errorf("u_temp_room = %v, want 215", gotBody["u_temp_room"])
	}
}
