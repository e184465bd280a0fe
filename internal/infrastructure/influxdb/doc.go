// Package influxdb records meter readings as InfluxDB time series.
//
// It wraps influxdb-client-go v2. Each stored reading becomes one point in
// the "electricity" measurement, tagged by apartment and floor, with
// voltage, current and power fields. The Client satisfies ingest.Observer
// and can be attached directly to the Supervisor.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // optional integration, carry on without it
//	}
//	defer client.Close()
//
//	supervisor.AddObserver(client)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch failures are reported asynchronously through
// SetOnError; connection and health check errors are returned directly.
package influxdb
