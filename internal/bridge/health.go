package bridge

import (
	"encoding/json"
	"sync"
	"time"
)

// Health statuses published on the health topic.
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
)

// HealthReporter periodically publishes a HealthMessage so consumers
// can distinguish "service down" from "cloud unreachable".
type HealthReporter struct {
	bridge   *Bridge
	interval time.Duration
	started  time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newHealthReporter(b *Bridge, interval time.Duration) *HealthReporter {
	return &HealthReporter{
		bridge:   b,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins periodic reporting. The first report is published
// immediately.
func (h *HealthReporter) Start() {
	h.started = time.Now()
	h.wg.Add(1)
	go h.reportLoop()
}

// Stop halts reporting and waits for the loop to exit. Idempotent.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
	h.wg.Wait()
}

func (h *HealthReporter) reportLoop() {
	defer h.wg.Done()

	h.PublishNow()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.PublishNow()
		case <-h.done:
			return
		}
	}
}

// PublishNow builds and publishes a single health report.
func (h *HealthReporter) PublishNow() {
	msg := h.buildMessage()

	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	if err := h.bridge.mqtt.Publish(h.bridge.topics.Health(), payload, h.bridge.qos, false); err != nil {
		if h.bridge.logger != nil {
			h.bridge.logger.Warn("publishing health report", "error", err)
		}
	}
}

func (h *HealthReporter) buildMessage() HealthMessage {
	states := h.bridge.coordinator.States()
	online := 0
	for _, s := range states {
		if s.Online {
			online++
		}
	}

	return HealthMessage{
		Service:       "breeze-core",
		Status:        h.determineStatus(),
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		MQTTConnected: h.bridge.mqtt.IsConnected(),
		Devices:       len(states),
		DevicesOnline: online,
		Diagnostics:   h.bridge.coordinator.Diagnostics(),
	}
}

// determineStatus reports degraded when the broker link is down or the
// most recent poll cycle failed.
func (h *HealthReporter) determineStatus() string {
	if !h.bridge.mqtt.IsConnected() {
		return StatusDegraded
	}
	diag := h.bridge.coordinator.Diagnostics()
	if diag.LastErrorClass != "" && diag.SuccessfulPolls == 0 {
		return StatusDegraded
	}
	return StatusOnline
}
