// Package mqtt provides the broker session used by PowerWatch.
//
// This package manages:
//   - One paho session per Client, connected on demand with a context bound
//   - Message publishing with QoS acknowledgement and timeouts
//   - Subscriptions whose messages all flow to a single ordered handler
//   - Retained service status with Last Will and Testament
//   - Topic naming for the meter namespace
//
// # Architecture
//
// Meters publish readings to <prefix>/<floor>/<apartment>. The service
// subscribes with <prefix>/+/+ and per-apartment filters; the ingest
// Supervisor routes each delivered message to exactly one subscription.
//
//	Meters → MQTT Broker → Client → ingest.Supervisor → store.Store
//
// The Client deliberately has no reconnect loop. Session recovery and
// resubscription belong to the Supervisor, which owns the backoff policy.
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true, usually port 8883) for hosted brokers
//   - InsecureSkipVerify is an explicit opt-in and should stay off in production
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, mqtt.WithStatusTopic(mqtt.ServiceStatus(cfg.MQTT.Broker.ClientID)))
//	client.SetMessageHandler(func(topic string, payload []byte) error {
//	    log.Printf("%s = %s", topic, payload)
//	    return nil
//	})
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//	err = client.Subscribe(ctx, topics.CatchAll(), 1)
package mqtt
