// powerwatch-sim publishes simulated meter readings and watches the
// reading stream.
//
//	powerwatch-sim publish -a 301 -f 3 -v 230.5 -c 4.2
//	powerwatch-sim simulate --extras
//	powerwatch-sim monitor -a 301
//
// Broker settings come from flags or the MQTT_BROKER, MQTT_PORT,
// MQTT_USERNAME, MQTT_PASSWORD and MQTT_TOPIC_PREFIX environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
