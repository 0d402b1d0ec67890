package influxdb

import (
	"errors"
	"testing"
	"time"

	"github.com/atmeex-community/breeze-core/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1", // nothing listens here
		Token:   "test-token",
		Org:     "test",
		Bucket:  "test",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_WritesNoopWhenDisconnected(t *testing.T) {
	// A zero-value client is never connected; write helpers must be
	// safe no-ops rather than panicking on the nil write API.
	c := &Client{}

	c.WriteClimateSample("brz-1", 21.5, 45, true, 3, time.Now())
	c.WritePollStats(120.0, 2, true)
	c.WritePoint("custom", map[string]string{"k": "v"}, map[string]interface{}{"f": 1.0})
	c.Flush()

	if c.IsConnected() {
		t.Error("zero-value client should not report connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero-value client: %v", err)
	}
}
