package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/atmeex-community/breeze-core/internal/infrastructure/config"
)

// Retry constants for transient failures.
const (
	// maxRetryAttempts is the total number of attempts per operation.
	maxRetryAttempts = 3

	// retryBaseDelay is the first backoff delay; doubles per attempt.
	retryBaseDelay = 1 * time.Second

	// retryMaxDelay caps the backoff growth.
	retryMaxDelay = 32 * time.Second

	// maxErrorBodyLen bounds how much of an error response body is
	// carried into error messages.
	maxErrorBodyLen = 200
)

// Logger interface for structured logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client is the authenticated Atmeex cloud API client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Re-authentication is serialized: concurrent 401s trigger at most
//     one sign-in at a time.
type Client struct {
	baseURL string
	http    *http.Client
	session *session
	logger  Logger

	// signinMu serializes sign-in so concurrent calls never race two
	// re-authentications against the same session.
	signinMu sync.Mutex

	// retryBase/retryMax are fields so tests can shrink the backoff.
	retryBase time.Duration
	retryMax  time.Duration

	// Cumulative counters, exposed for the diagnostics surface.
	retryCount  atomic.Int64
	reauthCount atomic.Int64
}

// New creates a cloud API client from configuration.
//
// The client is unauthenticated until Login is called.
func New(cfg config.CloudConfig, logger Logger) *Client {
	timeout := cfg.GetRequestTimeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		session:   &session{},
		logger:    logger,
		retryBase: retryBaseDelay,
		retryMax:  retryMaxDelay,
	}
}

// Retries returns the cumulative count of transient-failure retries.
func (c *Client) Retries() int64 {
	return c.retryCount.Load()
}

// Reauths returns the cumulative count of automatic re-authentications.
func (c *Client) Reauths() int64 {
	return c.reauthCount.Load()
}

// BearerToken returns the current session token for out-of-band
// consumers such as the WebSocket push channel.
func (c *Client) BearerToken() (string, bool) {
	token, _, ok := c.session.bearer()
	return token, ok
}

// Login authenticates with email and password and stores the session.
//
// A 401/403 response surfaces *AuthError (bad credentials); transient
// failures are retried and surface *APIError.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return ErrNoCredentials
	}
	c.session.setCredentials(email, password)
	c.session.invalidate()
	return c.signIn(ctx)
}

// signIn performs POST /auth/signin with the stored credentials and
// replaces the session token. Serialized via signinMu; a caller that
// blocked behind another sign-in returns without a second round trip.
func (c *Client) signIn(ctx context.Context) error {
	c.signinMu.Lock()
	defer c.signinMu.Unlock()

	// Another request may have refreshed the token while we waited.
	if !c.session.needsRefresh(time.Now()) {
		return nil
	}

	email, password := c.session.credentials()
	if email == "" || password == "" {
		return ErrNoCredentials
	}

	body, err := json.Marshal(map[string]string{
		"grant_type": "basic",
		"email":      email,
		"password":   password,
	})
	if err != nil {
		return fmt.Errorf("cloud: marshal signin body: %w", err)
	}

	return c.withRetries(ctx, "login", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/auth/signin", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("cloud: build signin request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", uuid.NewString())

		resp, err := c.http.Do(req)
		if err != nil {
			return &APIError{Action: "login", Transient: true, Message: err.Error(), Err: err}
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &AuthError{Status: resp.StatusCode, Message: truncate(respBody)}
		case resp.StatusCode >= 500:
			return &APIError{Action: "login", Status: resp.StatusCode, Transient: true, Message: truncate(respBody)}
		case resp.StatusCode >= 400:
			return &APIError{Action: "login", Status: resp.StatusCode, Message: truncate(respBody)}
		}

		var parsed signinResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return &APIError{Action: "login", Status: resp.StatusCode,
				Message: "bad JSON in signin response", Err: err}
		}
		token := parsed.AccessToken
		if token == "" {
			token = parsed.Token
		}
		if token == "" {
			return &APIError{Action: "login", Status: resp.StatusCode,
				Message: "token missing in response"}
		}

		c.session.setToken(token, parsed.TokenType)
		return nil
	})
}

// GetDevices fetches the account's device list.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := c.withRetries(ctx, "get_devices", func(ctx context.Context) error {
		respBody, err := c.authorizedRequest(ctx, http.MethodGet, "/devices", nil, "get_devices")
		if err != nil {
			return err
		}
		var list deviceListResponse
		if err := json.Unmarshal(respBody, &list); err != nil {
			return &APIError{Action: "get_devices", Message: "unexpected response shape", Err: err}
		}
		devices = make([]Device, 0, len(list.items))
		for _, raw := range list.items {
			devices = append(devices, raw.normalize())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// GetDevice fetches a single device by id.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (Device, error) {
	var device Device
	action := "get_device"
	err := c.withRetries(ctx, action, func(ctx context.Context) error {
		respBody, err := c.authorizedRequest(ctx, http.MethodGet, "/devices/"+deviceID, nil, action)
		if err != nil {
			return err
		}
		var raw rawDevice
		if err := json.Unmarshal(respBody, &raw); err != nil {
			return &APIError{Action: action, Message: "bad JSON in device response", Err: err}
		}
		device = raw.normalize()
		return nil
	})
	if err != nil {
		return Device{}, err
	}
	return device, nil
}

// SetPower switches the device on or off (wire field u_pwr_on).
func (c *Client) SetPower(ctx context.Context, deviceID string, on bool) error {
	return c.putParams(ctx, deviceID, map[string]any{"u_pwr_on": on}, "set_power")
}

// SetFanSpeed sets the discrete fan speed (wire field u_fan_speed).
func (c *Client) SetFanSpeed(ctx context.Context, deviceID string, speed int) error {
	return c.putParams(ctx, deviceID, map[string]any{"u_fan_speed": speed}, "set_fan_speed")
}

// SetMode sets the damper position selecting the operation mode
// (wire field u_damp_pos, 0-3).
func (c *Client) SetMode(ctx context.Context, deviceID string, damperPos int) error {
	return c.putParams(ctx, deviceID, map[string]any{"u_damp_pos": damperPos}, "set_mode")
}

// SetTargetTemperature sets the target room temperature in degrees
// Celsius. The wire carries deci-degrees (21.5 -> 215).
func (c *Client) SetTargetTemperature(ctx context.Context, deviceID string, tempC float64) error {
	deci := int(math.Round(tempC * 10))
	return c.putParams(ctx, deviceID, map[string]any{"u_temp_room": deci}, "set_target_temperature")
}

// SetHumidifierStage sets the humidifier stage 0-3 (wire field u_hum_stg).
func (c *Client) SetHumidifierStage(ctx context.Context, deviceID string, stage int) error {
	return c.putParams(ctx, deviceID, map[string]any{"u_hum_stg": stage}, "set_humid_stage")
}

// SetAutoNanny toggles the device-side automatic mode (wire field u_auto).
func (c *Client) SetAutoNanny(ctx context.Context, deviceID string, on bool) error {
	return c.putParams(ctx, deviceID, map[string]any{"u_auto": on}, "set_auto_mode")
}

// SetSleepMode toggles the device-side night mode (wire field u_night).
func (c *Client) SetSleepMode(ctx context.Context, deviceID string, on bool) error {
	return c.putParams(ctx, deviceID, map[string]any{"u_night": on}, "set_night_mode")
}

// putParams is the shared helper for all PUT /devices/{id}/params calls.
func (c *Client) putParams(ctx context.Context, deviceID string, params map[string]any, action string) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("cloud: marshal %s body: %w", action, err)
	}
	return c.withRetries(ctx, action, func(ctx context.Context) error {
		_, err := c.authorizedRequest(ctx, http.MethodPut,
			"/devices/"+deviceID+"/params", body, action)
		return err
	})
}

// authorizedRequest performs one request with the session token,
// transparently signing in when no valid token is held and re-logging
// in exactly once on 401/403. A second consecutive 401/403 surfaces
// *AuthError without looping.
func (c *Client) authorizedRequest(ctx context.Context, method, path string, body []byte, action string) ([]byte, error) {
	if c.session.needsRefresh(time.Now()) {
		if err := c.signIn(ctx); err != nil {
			return nil, err
		}
	}

	respBody, status, err := c.doRequest(ctx, method, path, body, action)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		// Token went stale server-side. One re-login, one retry.
		c.session.invalidate()
		c.reauthCount.Add(1)
		if err := c.signIn(ctx); err != nil {
			return nil, err
		}
		respBody, status, err = c.doRequest(ctx, method, path, body, action)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, &AuthError{Status: status, Message: truncate(respBody)}
		}
	}

	switch {
	case status >= 500:
		return nil, &APIError{Action: action, Status: status, Transient: true, Message: truncate(respBody)}
	case status >= 400:
		return nil, &APIError{Action: action, Status: status, Message: truncate(respBody)}
	}

	return respBody, nil
}

// doRequest executes a single HTTP round trip with auth headers.
// Network failures are wrapped as transient *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, action string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("cloud: build %s request: %w", action, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token, tokenType, ok := c.session.bearer(); ok {
		req.Header.Set("Authorization", tokenType+" "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &APIError{Action: action, Transient: true, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, &APIError{Action: action, Transient: true, Message: err.Error(), Err: err}
	}
	return respBody, resp.StatusCode, nil
}

// withRetries runs fn up to maxRetryAttempts times, retrying only
// transient failures (network errors, 5xx) with exponential backoff.
// Auth and client errors surface immediately.
func (c *Client) withRetries(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	delay := c.retryBase

	var lastErr error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}

		c.retryCount.Add(1)
		if attempt == maxRetryAttempts {
			break
		}

		if c.logger != nil {
			c.logger.Warn("Cloud request failed, retrying",
				"action", action,
				"attempt", attempt,
				"max_attempts", maxRetryAttempts,
				"delay", delay.String(),
				"error", lastErr,
			)
		}

		select {
		case <-ctx.Done():
			return &APIError{Action: action, Transient: true,
				Message: ctx.Err().Error(), Err: ctx.Err()}
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.retryMax {
			delay = c.retryMax
		}
	}

	return lastErr
}

// truncate bounds a response body for inclusion in error messages.
func truncate(body []byte) string {
	if len(body) > maxErrorBodyLen {
		return string(body[:maxErrorBodyLen])
	}
	return string(body)
}
