package bridge

import "errors"

var (
	// ErrMissingCoordinator is returned when NewBridge is called without a coordinator.
	ErrMissingCoordinator = errors.New("bridge: coordinator is required")

	// ErrMissingMQTT is returned when NewBridge is called without an MQTT client.
	ErrMissingMQTT = errors.New("bridge: mqtt client is required")

	// ErrAlreadyStarted is returned when Start is called on a running bridge.
	ErrAlreadyStarted = errors.New("bridge: already started")

	// ErrBadCommandTopic is returned when a command arrives on a topic
	// without a device segment.
	ErrBadCommandTopic = errors.New("bridge: malformed command topic")
)
