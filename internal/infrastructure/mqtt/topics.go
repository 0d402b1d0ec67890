package mqtt

import "fmt"

// Topic prefixes for the breeze-core MQTT surface.
//
// All device topics use the flat scheme: breeze/{category}/{device_id}
// which keeps wildcard subscriptions cheap for home-automation consumers.
const (
	// TopicPrefix is the base for all breeze-core topics.
	TopicPrefix = "breeze"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "breeze/system"
)

// Topics provides builders for breeze-core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("brz-4f21")
//	// Returns: "breeze/state/brz-4f21"
type Topics struct{}

// DeviceState returns the topic for reconciled device state.
// Published retained after every successful poll cycle and after
// confirmed commands.
//
// Example: breeze/state/brz-4f21
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// DeviceCommand returns the topic external systems publish commands to.
//
// Example: breeze/command/brz-4f21
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceAvailability returns the per-device availability topic.
// Carries "online" or "offline" as a retained plain-string payload.
//
// Example: breeze/availability/brz-4f21
func (Topics) DeviceAvailability(deviceID string) string {
	return fmt.Sprintf("%s/availability/%s", TopicPrefix, deviceID)
}

// DeviceAck returns the topic for command acknowledgements.
//
// Example: breeze/ack/brz-4f21
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// Health returns the topic for periodic service health reports.
//
// Example: breeze/health
func (Topics) Health() string {
	return fmt.Sprintf("%s/health", TopicPrefix)
}

// SystemStatus returns the service status topic (online/offline/LWT).
//
// Example: breeze/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceCommands returns a pattern matching command topics for all devices.
//
// Pattern: breeze/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllDeviceStates returns a pattern matching state topics for all devices.
//
// Pattern: breeze/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllTopics returns a pattern matching all breeze-core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: breeze/#
func (Topics) AllTopics() string {
	return "breeze/#"
}
