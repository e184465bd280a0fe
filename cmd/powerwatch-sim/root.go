package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
	"github.com/nerrad567/powerwatch/internal/infrastructure/logging"
	"github.com/nerrad567/powerwatch/internal/infrastructure/mqtt"
)

// Flag names shared by every subcommand.
const (
	flagBroker      = "broker"
	flagPort        = "port"
	flagUsername    = "username"
	flagPassword    = "password"
	flagTopicPrefix = "topic-prefix"
	flagTLS         = "tls"
	flagInsecure    = "insecure"
	flagQoS         = "qos"
	flagLogLevel    = "log-level"
)

// envNames lists the environment variables bound to each flag. The first
// one set wins.
var envNames = map[string][]string{
	flagBroker:      {"POWERWATCH_MQTT_HOST", "MQTT_BROKER"},
	flagPort:        {"POWERWATCH_MQTT_PORT", "MQTT_PORT"},
	flagUsername:    {"POWERWATCH_MQTT_USERNAME", "MQTT_USERNAME"},
	flagPassword:    {"POWERWATCH_MQTT_PASSWORD", "MQTT_PASSWORD"},
	flagTopicPrefix: {"POWERWATCH_MQTT_TOPIC_PREFIX", "MQTT_TOPIC_PREFIX"},
	flagTLS:         {"POWERWATCH_MQTT_TLS", "MQTT_TLS"},
	flagInsecure:    {"POWERWATCH_MQTT_INSECURE_SKIP_VERIFY", "MQTT_INSECURE_SKIP_VERIFY"},
}

// newRootCmd builds the command tree with its own viper instance.
func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "powerwatch-sim",
		Short:         "Publish simulated meter readings and monitor the reading stream",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaults := config.Default().MQTT
	pf := root.PersistentFlags()
	pf.String(flagBroker, defaults.Broker.Host, "MQTT broker host")
	pf.Int(flagPort, defaults.Broker.Port, "MQTT broker port (8883 for TLS)")
	pf.String(flagUsername, "", "MQTT username")
	pf.String(flagPassword, "", "MQTT password")
	pf.String(flagTopicPrefix, defaults.TopicPrefix, "Topic prefix")
	pf.Bool(flagTLS, false, "Connect with TLS")
	pf.Bool(flagInsecure, false, "Skip broker certificate verification")
	pf.Int(flagQoS, defaults.QoS, "QoS for publish and subscribe")
	pf.String(flagLogLevel, "info", "Log level (debug, info, warn, error)")

	bindConfig(v, pf)

	root.AddCommand(
		newPublishCmd(v),
		newSimulateCmd(v),
		newMonitorCmd(v),
	)
	return root
}

// bindConfig wires flags and environment variables into v.
func bindConfig(v *viper.Viper, flags *pflag.FlagSet) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	//nolint:errcheck // flags are registered by the caller
	v.BindPFlags(flags)
	for key, names := range envNames {
		//nolint:errcheck // key is non-empty
		v.BindEnv(append([]string{key}, names...)...)
	}
}

// mqttConfig builds the client configuration from flags and environment.
func mqttConfig(v *viper.Viper, role string) (config.MQTTConfig, error) {
	cfg := config.Default().MQTT
	cfg.Broker.Host = v.GetString(flagBroker)
	cfg.Broker.Port = v.GetInt(flagPort)
	cfg.Broker.TLS = v.GetBool(flagTLS)
	cfg.Broker.InsecureSkipVerify = v.GetBool(flagInsecure)
	cfg.Broker.ClientID = fmt.Sprintf("powerwatch-%s-%s", role, uuid.NewString()[:8])
	cfg.Auth.Username = v.GetString(flagUsername)
	cfg.Auth.Password = v.GetString(flagPassword)
	cfg.TopicPrefix = v.GetString(flagTopicPrefix)
	cfg.QoS = v.GetInt(flagQoS)

	if cfg.Broker.Host == "" {
		return cfg, fmt.Errorf("broker host is required")
	}
	if cfg.Broker.Port < 1 || cfg.Broker.Port > 65535 {
		return cfg, fmt.Errorf("broker port %d out of range", cfg.Broker.Port)
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return cfg, fmt.Errorf("qos must be 0, 1, or 2")
	}
	if cfg.TopicPrefix == "" || strings.ContainsAny(cfg.TopicPrefix, "+#") {
		return cfg, fmt.Errorf("topic prefix %q is invalid", cfg.TopicPrefix)
	}
	return cfg, nil
}

// newLogger writes text logs to stderr so command output stays clean.
func newLogger(v *viper.Viper) *logging.Logger {
	return logging.New(config.LoggingConfig{
		Level:  v.GetString(flagLogLevel),
		Format: "text",
		Output: "stderr",
	}, version)
}

// connect opens a broker session for role.
func connect(ctx context.Context, v *viper.Viper, role string, log *logging.Logger) (*mqtt.Client, config.MQTTConfig, error) {
	cfg, err := mqttConfig(v, role)
	if err != nil {
		return nil, cfg, err
	}

	client := mqtt.New(cfg)
	client.SetLogger(log)
	if err := client.Connect(ctx); err != nil {
		return nil, cfg, fmt.Errorf("connecting to %s: %w", mqtt.BrokerURL(cfg.Broker), err)
	}
	log.Info("connected to broker", "broker", mqtt.BrokerURL(cfg.Broker), "client_id", cfg.Broker.ClientID)
	return client, cfg, nil
}
