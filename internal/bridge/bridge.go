package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atmeex-community/breeze-core/internal/breezer"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/mqtt"
)

// Defaults for bridge behaviour.
const (
	defaultQoS            = 1
	defaultHealthInterval = 30 * time.Second

	onlinePayload  = "online"
	offlinePayload = "offline"
)

// Coordinator is the slice of the reconciliation coordinator the bridge
// needs. Satisfied by *breezer.Coordinator.
type Coordinator interface {
	ExecuteCommand(ctx context.Context, deviceID string, field breezer.Field, value any) error
	Subscribe(l breezer.Listener) breezer.Subscription
	Unsubscribe(sub breezer.Subscription)
	Device(deviceID string) (breezer.Device, error)
	Devices() []breezer.Device
	States() map[string]breezer.DeviceState
	Diagnostics() breezer.Diagnostics
}

// MQTTClient is the broker surface the bridge publishes and subscribes
// through. Satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger is the minimal logging interface the bridge requires.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Bridge publishes reconciled breezer state to MQTT and forwards broker
// commands into the coordinator.
type Bridge struct {
	coordinator Coordinator
	mqtt        MQTTClient
	logger      Logger
	topics      mqtt.Topics
	qos         byte

	health *HealthReporter

	mu      sync.Mutex
	running bool
	sub     breezer.Subscription

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Coordinator Coordinator
	MQTT        MQTTClient
	Logger      Logger

	// QoS for all bridge publishes and subscriptions. Defaults to 1.
	QoS byte

	// HealthInterval is how often the health report is published.
	// Defaults to 30s. Zero or negative uses the default; health
	// reporting cannot be disabled, only slowed.
	HealthInterval time.Duration
}

// NewBridge validates options and builds a stopped Bridge.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Coordinator == nil {
		return nil, ErrMissingCoordinator
	}
	if opts.MQTT == nil {
		return nil, ErrMissingMQTT
	}

	qos := opts.QoS
	if qos == 0 {
		qos = defaultQoS
	}

	b := &Bridge{
		coordinator: opts.Coordinator,
		mqtt:        opts.MQTT,
		logger:      opts.Logger,
		qos:         qos,
	}

	interval := opts.HealthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	b.health = newHealthReporter(b, interval)

	return b, nil
}

// Start subscribes to the command wildcard, attaches the state listener
// and begins health reporting. The bridge runs until Stop.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.running = true
	b.mu.Unlock()

	b.ctx, b.ctxCancel = context.WithCancel(context.Background())

	if err := b.mqtt.Subscribe(b.topics.AllDeviceCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("bridge: subscribing to commands: %w", err)
	}

	b.mu.Lock()
	b.sub = b.coordinator.Subscribe(b.publishStates)
	b.mu.Unlock()

	// Publish whatever the coordinator already reconciled so retained
	// topics are populated before the next poll cycle.
	if states := b.coordinator.States(); len(states) > 0 {
		b.publishStates(states)
	}

	b.health.Start()

	if b.logger != nil {
		b.logger.Info("mqtt bridge started", "qos", b.qos)
	}
	return nil
}

// Stop detaches from the coordinator and halts health reporting.
// Idempotent.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		sub := b.sub
		b.mu.Unlock()

		b.coordinator.Unsubscribe(sub)
		b.health.Stop()
		if b.ctxCancel != nil {
			b.ctxCancel()
		}

		if b.logger != nil {
			b.logger.Info("mqtt bridge stopped")
		}
	})
}

// publishStates is the coordinator listener: one retained state message
// and one availability message per device, every reconciliation.
func (b *Bridge) publishStates(states map[string]breezer.DeviceState) {
	for id, state := range states {
		device, err := b.coordinator.Device(id)
		if err != nil {
			// Snapshot raced discovery; skip until the next cycle.
			continue
		}

		payload, err := json.Marshal(newStateMessage(device, state))
		if err != nil {
			if b.logger != nil {
				b.logger.Error("marshaling state message", "device_id", id, "error", err)
			}
			continue
		}

		if err := b.mqtt.Publish(b.topics.DeviceState(id), payload, b.qos, true); err != nil {
			if b.logger != nil {
				b.logger.Warn("publishing device state", "device_id", id, "error", err)
			}
			continue
		}

		availability := offlinePayload
		if state.Online {
			availability = onlinePayload
		}
		if err := b.mqtt.Publish(b.topics.DeviceAvailability(id), []byte(availability), b.qos, true); err != nil {
			if b.logger != nil {
				b.logger.Warn("publishing device availability", "device_id", id, "error", err)
			}
		}
	}
}

// handleCommand parses a broker command, forwards it to the coordinator
// and acknowledges the outcome.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID, err := deviceIDFromTopic(topic)
	if err != nil {
		return err
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.publishAck(deviceID, "", AckRejected, fmt.Sprintf("invalid command payload: %v", err))
		return fmt.Errorf("bridge: decoding command for %s: %w", deviceID, err)
	}

	field, value, err := msg.decodeValue()
	if err != nil {
		b.publishAck(deviceID, msg.Field, AckRejected, err.Error())
		return err
	}

	if err := b.coordinator.ExecuteCommand(b.ctx, deviceID, field, value); err != nil {
		status := AckFailed
		var vErr *breezer.ValidationError
		if errors.As(err, &vErr) || errors.Is(err, breezer.ErrDeviceNotFound) {
			status = AckRejected
		}
		b.publishAck(deviceID, msg.Field, status, err.Error())
		return fmt.Errorf("bridge: command %s on %s: %w", field, deviceID, err)
	}

	b.publishAck(deviceID, msg.Field, AckAccepted, "")
	return nil
}

// publishAck reports a command outcome on the per-device ack topic.
// Acks are advisory and never retained.
func (b *Bridge) publishAck(deviceID, field, status, errMsg string) {
	ack := AckMessage{
		DeviceID:  deviceID,
		Field:     field,
		Status:    status,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := b.mqtt.Publish(b.topics.DeviceAck(deviceID), payload, b.qos, false); err != nil {
		if b.logger != nil {
			b.logger.Warn("publishing command ack", "device_id", deviceID, "error", err)
		}
	}
}

// deviceIDFromTopic extracts the device segment from breeze/command/{id}.
func deviceIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("%w: %q", ErrBadCommandTopic, topic)
	}
	return parts[len(parts)-1], nil
}
