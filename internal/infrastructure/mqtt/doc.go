// Package mqtt provides MQTT client connectivity for graydispatch.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// graydispatch publishes the outcome of every device command and every
// program run, and accepts command requests for named devices:
//
//	graylogic/dispatch/command/{name} → graydispatch → graylogic/dispatch/result/{id}
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) whenever the broker is not on localhost
//   - Credentials belong in GRAYLOGIC_MQTT_USERNAME / GRAYLOGIC_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.CommandResult(string(id)), result, false)
package mqtt
