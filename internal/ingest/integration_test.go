package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/powerwatch/internal/infrastructure/broker"
	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
	"github.com/nerrad567/powerwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/powerwatch/internal/store"
)

// TestIntegration_BrokerRoundTripAndRecovery runs the Supervisor against an
// embedded broker: a reading published by a meter lands in the Store, and
// after the broker drops the session the Supervisor reconnects and keeps
// ingesting.
func TestIntegration_BrokerRoundTripAndRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker integration test in short mode")
	}

	addr, err := broker.FreeAddress()
	if err != nil {
		t.Fatalf("FreeAddress() error = %v", err)
	}
	b, err := broker.New(config.EmbeddedBrokerConfig{Enabled: true, Address: addr}, nil)
	if err != nil {
		t.Fatalf("broker.New() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("broker.Start() error = %v", err)
	}
	t.Cleanup(func() { b.Close() }) //nolint:errcheck // Test cleanup

	mqttCfg := config.Default().MQTT
	mqttCfg.Broker.Host = "127.0.0.1"
	mqttCfg.Broker.Port = b.Port()
	mqttCfg.Reconnect.InitialDelay = 20 * time.Millisecond
	mqttCfg.Reconnect.MaxDelay = 100 * time.Millisecond

	coreCfg := mqttCfg
	coreCfg.Broker.ClientID = "powerwatch-ingest-it"
	client := mqtt.New(coreCfg)

	st := store.New()
	sup := NewSupervisor(client, st, ConfigFrom(coreCfg))
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(sup.Stop)

	waitFor(t, "first session", func() bool { return sup.State() == StateConnected })

	meterCfg := mqttCfg
	meterCfg.Broker.ClientID = "meter-it"
	meter := mqtt.New(meterCfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := meter.Connect(ctx); err != nil {
		t.Fatalf("meter Connect() error = %v", err)
	}
	t.Cleanup(meter.Disconnect)

	topics := mqtt.Topics{Prefix: mqttCfg.TopicPrefix}
	publish := func(voltage string) {
		t.Helper()
		payload := `{"voltage": ` + voltage + `, "current": 2}`
		if err := meter.PublishString(ctx, topics.Reading("3", "301"), payload, 1, false); err != nil {
			t.Fatalf("meter Publish() error = %v", err)
		}
	}

	publish("230")
	waitFor(t, "first reading", func() bool {
		r, ok := st.Get("301")
		return ok && r.Voltage == 230
	})

	if !b.Disconnect("powerwatch-ingest-it") {
		t.Fatal("broker did not know the ingest client")
	}
	waitFor(t, "session loss", func() bool { return sup.State() != StateConnected })
	waitFor(t, "second session", func() bool { return sup.State() == StateConnected })

	publish("241")
	waitFor(t, "reading after reconnect", func() bool {
		r, ok := st.Get("301")
		return ok && r.Voltage == 241 && r.Power == 482
	})
}
