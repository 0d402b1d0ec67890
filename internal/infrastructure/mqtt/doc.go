// Package mqtt provides MQTT client connectivity for breeze-core.
//
// This package manages:
//   - Connection to the local broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// breeze-core publishes reconciled breezer state to retained topics and
// accepts commands from external home-automation systems on command
// topics. The broker decouples consumers from the Atmeex cloud API.
//
//	Home Automation ↔ MQTT Broker ↔ breeze-core ↔ Atmeex Cloud
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device commands
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(topic, payload)
//	    })
//
//	// Publish reconciled state
//	topic := mqtt.Topics{}.DeviceState("brz-4f21")
//	client.PublishRetained(topic, stateJSON)
package mqtt
