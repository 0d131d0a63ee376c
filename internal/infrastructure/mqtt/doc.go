// Package mqtt provides MQTT client connectivity for Verdant Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Verdant uses MQTT as the message bus between the scheduling core and
// the switch bridge that drives the irrigation valve relays. The broker
// (Mosquitto) decouples the core from the relay hardware.
//
//	Verdant Core ↔ MQTT Broker ↔ Switch Bridge ↔ Valve Relays
//
// The bridge publishes valve state retained, so a reconnecting core
// immediately learns the last known position of every valve.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all valve state reports
//	err = client.Subscribe(mqtt.Topics{}.AllSwitchStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish command
//	topic := mqtt.Topics{}.SwitchCommand("valve-bed-1")
//	client.Publish(topic, []byte(`{"action":"on"}`), 1, false)
package mqtt
