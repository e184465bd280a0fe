package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/powerwatch/internal/publisher"
	"github.com/nerrad567/powerwatch/internal/simulator"
)

func newSimulateCmd(v *viper.Viper) *cobra.Command {
	var (
		apartments []string
		extras     bool
	)
	minInterval, maxInterval := simulator.DefaultMinInterval, simulator.DefaultMaxInterval

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a building of meters publishing concurrently",
		Long: `Simulate runs one meter per apartment (101, 102, 201, 202, 301, 302 by
default), each with its own current range and a jittered 2-5 s interval.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := selectProfiles(apartments)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			log := newLogger(v)

			client, cfg, err := connect(ctx, v, "simulator", log)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			opts := []simulator.Option{
				simulator.WithInterval(minInterval, maxInterval),
				simulator.WithLogger(log),
			}
			if extras {
				opts = append(opts, simulator.WithExtras())
			}

			pub := publisher.New(client, cfg.TopicPrefix, byte(cfg.QoS)) //nolint:gosec // validated to 0..2
			sim := simulator.New(pub, profiles, opts...)

			fmt.Fprintf(cmd.OutOrStdout(), "simulating %d apartments under %s, Ctrl+C to stop\n", len(profiles), cfg.TopicPrefix)
			return sim.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&apartments, "apartments", "a", nil, "Apartments to simulate (default all)")
	f.BoolVar(&extras, "extras", true, "Add room temperature, humidity, device id and battery level")
	f.DurationVar(&minInterval, "min-interval", minInterval, "Shortest delay between readings of one apartment")
	f.DurationVar(&maxInterval, "max-interval", maxInterval, "Longest delay between readings of one apartment")

	return cmd
}

// selectProfiles returns the default profiles named in numbers, or all of
// them when numbers is empty.
func selectProfiles(numbers []string) ([]simulator.Profile, error) {
	if len(numbers) == 0 {
		return simulator.DefaultProfiles, nil
	}

	out := make([]simulator.Profile, 0, len(numbers))
	for _, n := range numbers {
		i := slices.IndexFunc(simulator.DefaultProfiles, func(p simulator.Profile) bool { return p.Apartment == n })
		if i < 0 {
			return nil, fmt.Errorf("no simulation profile for apartment %q", n)
		}
		out = append(out, simulator.DefaultProfiles[i])
	}
	return out, nil
}
