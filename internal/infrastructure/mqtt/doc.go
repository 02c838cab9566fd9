// Package mqtt provides MQTT client connectivity for GridPulse.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Field devices (streetlight controllers and power meters) publish telemetry
// to unit/{mac}/status and listen for commands on unit/{mac}/command. The
// broker decouples the telemetry pipeline from the device fleet.
//
//	Field Devices ↔ MQTT Broker ↔ GridPulse Pipeline
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to telemetry from every device
//	err = client.Subscribe(mqtt.Topics{}.AllUnitStatus(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish command
//	topic := mqtt.Topics{}.UnitCommand("a1b2c3d4e5f6")
//	client.Publish(topic, []byte(`{"toggle":1}`), 1, false)
package mqtt
