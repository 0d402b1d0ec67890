package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteClimateSample records one reconciled climate reading for a breezer.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Callers pass hasHumidity=false when the device reported no humidity
// sensor value this cycle (the field is then omitted entirely rather
// than recorded as zero).
//
// Parameters:
//   - deviceID: Breezer identifier
//   - roomTempC: Room temperature in °C (callers must skip the unknown sentinel)
//   - humidityPct: Room humidity percentage
//   - hasHumidity: Whether humidityPct carries a real reading
//   - fanSpeed: Current fan speed 0-7
//   - observedAt: When the sample was taken
func (c *Client) WriteClimateSample(deviceID string, roomTempC float64, humidityPct int, hasHumidity bool, fanSpeed int, observedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"room_temp_c": roomTempC,
		"fan_speed":   fanSpeed,
	}
	if hasHumidity {
		fields["humidity_pct"] = humidityPct
	}

	point := write.NewPoint(
		"breezer_climate",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		observedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WritePollStats records the outcome of one poll cycle.
//
// Useful for dashboarding cloud latency and reliability over time.
func (c *Client) WritePollStats(durationMS float64, devices int, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"poll_cycle",
		map[string]string{
			"outcome": outcomeTag(success),
		},
		map[string]interface{}{
			"duration_ms": durationMS,
			"devices":     devices,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

func outcomeTag(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
