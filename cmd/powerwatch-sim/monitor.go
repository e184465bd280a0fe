package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/powerwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/powerwatch/internal/reading"
	"github.com/nerrad567/powerwatch/internal/topic"
)

func newMonitorCmd(v *viper.Viper) *cobra.Command {
	var apartment string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print every reading on the broker, in detail for one apartment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := newLogger(v)

			cfg, err := mqttConfig(v, "monitor")
			if err != nil {
				return err
			}

			m := &monitor{out: cmd.OutOrStdout(), apartment: apartment}
			client := mqtt.New(cfg)
			client.SetLogger(log)
			client.SetMessageHandler(m.handle)

			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("connecting to %s: %w", mqtt.BrokerURL(cfg.Broker), err)
			}
			defer client.Disconnect()

			filter := mqtt.Topics{Prefix: cfg.TopicPrefix}.CatchAll()
			if err := client.Subscribe(ctx, filter, byte(cfg.QoS)); err != nil { //nolint:gosec // validated to 0..2
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "monitoring %s, Ctrl+C to stop\n", filter)

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&apartment, "apartment", "a", "", "Apartment to show in detail (default all)")
	return cmd
}

// monitor renders readings as they arrive.
type monitor struct {
	out       io.Writer
	apartment string
	mu        sync.Mutex
}

// handle decodes one message and prints it. Undecodable payloads are
// reported and skipped.
func (m *monitor) handle(topicName string, payload []byte) error {
	levels := topic.Split(topicName)
	key := levels[len(levels)-1]

	r, err := reading.Decode(payload, time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		fmt.Fprintf(m.out, "%s: invalid reading: %v\n", topicName, err)
		return nil
	}
	if m.apartment == "" || m.apartment == key {
		renderDetail(m.out, topicName, key, r)
		return nil
	}
	fmt.Fprintf(m.out, "apartment %s: %.1fW\n", key, r.Power)
	return nil
}

// renderDetail writes a multi-line view of r.
func renderDetail(w io.Writer, topicName, key string, r reading.Reading) {
	var b strings.Builder
	fmt.Fprintf(&b, "apartment %s\n", key)
	fmt.Fprintf(&b, "  voltage:   %.2f V\n", r.Voltage)
	fmt.Fprintf(&b, "  current:   %.2f A\n", r.Current)
	fmt.Fprintf(&b, "  power:     %.2f W\n", r.Power)
	if r.Floor != "" {
		fmt.Fprintf(&b, "  floor:     %s\n", r.Floor)
	}
	if r.ReportedAt != "" {
		fmt.Fprintf(&b, "  timestamp: %s\n", r.ReportedAt)
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if k == reading.FieldApartment {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, r.Extra[k])
	}
	fmt.Fprintf(&b, "  topic:     %s\n", topicName)

	io.WriteString(w, b.String()) //nolint:errcheck // terminal output
}
