package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/powerwatch/internal/publisher"
	"github.com/nerrad567/powerwatch/internal/simulator"
)

func newPublishCmd(v *viper.Viper) *cobra.Command {
	var (
		apartment  string
		floor      string
		voltage    float64
		current    float64
		continuous bool
		interval   time.Duration
		extras     bool
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one reading for an apartment, or keep publishing with --continuous",
		Long: `Publish sends a reading to <prefix>/floor/<apartment>.

With --voltage and --current the given values are sent; otherwise values are
simulated (220-240 V, 0.5-15 A).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := newLogger(v)

			client, cfg, err := connect(ctx, v, "publisher", log)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			pub := publisher.New(client, cfg.TopicPrefix, byte(cfg.QoS)) //nolint:gosec // validated to 0..2
			profile := simulator.SingleProfile(apartment, floor)

			if continuous {
				opts := []simulator.Option{simulator.WithInterval(interval, interval), simulator.WithLogger(log)}
				if extras {
					opts = append(opts, simulator.WithExtras())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "publishing for apartment %s every %s, Ctrl+C to stop\n", apartment, interval)
				return simulator.New(pub, []simulator.Profile{profile}, opts...).Run(ctx)
			}

			var opts []simulator.Option
			if extras {
				opts = append(opts, simulator.WithExtras())
			}
			sample := simulator.New(pub, nil, opts...).Sample(profile)
			if cmd.Flags().Changed("voltage") && cmd.Flags().Changed("current") {
				sample.Voltage = voltage
				sample.Current = current
			}

			if err := pub.PublishSample(ctx, sample); err != nil {
				return err
			}
			printSample(cmd.OutOrStdout(), sample)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&apartment, "apartment", "a", "", "Apartment number, e.g. 101")
	f.StringVarP(&floor, "floor", "f", "1", "Floor number")
	f.Float64VarP(&voltage, "voltage", "v", 0, "Voltage in volts (simulated when omitted)")
	f.Float64VarP(&current, "current", "c", 0, "Current in amperes (simulated when omitted)")
	f.BoolVar(&continuous, "continuous", false, "Keep publishing until interrupted")
	f.DurationVarP(&interval, "interval", "i", 3*time.Second, "Interval in continuous mode")
	f.BoolVar(&extras, "extras", false, "Add room temperature, humidity, device id and battery level")
	//nolint:errcheck // flag exists
	cmd.MarkFlagRequired("apartment")
	cmd.MarkFlagsRequiredTogether("voltage", "current")

	return cmd
}

// printSample writes one published sample as a single line.
func printSample(w io.Writer, s publisher.Sample) {
	fmt.Fprintf(w, "apartment %s (floor %s): V=%.2fV I=%.2fA P=%.2fW\n",
		s.Apartment, s.Floor, s.Voltage, s.Current, s.Voltage*s.Current)
}
