package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/powerwatch/internal/reading"
)

// Measurement and tag names for meter readings.
const (
	MeasurementElectricity = "electricity"

	tagApartment = "apartment"
	tagFloor     = "floor"
)

// WriteReading queues one meter reading.
//
// The point is timestamped with the time the reading reached the service,
// not the meter's own clock, which is often unset or skewed. Floor is only
// tagged when the meter reported one.
//
//	electricity,apartment=301,floor=3 voltage=230.1,current=4.2,power=966.42
func (c *Client) WriteReading(apartment string, r reading.Reading) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(readingPoint(apartment, r))
}

// Observe implements ingest.Observer. It never blocks; the write API
// buffers the point.
func (c *Client) Observe(apartment string, r reading.Reading) {
	c.WriteReading(apartment, r)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit WriteReading, such as service
// statistics.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func readingPoint(apartment string, r reading.Reading) *write.Point {
	tags := map[string]string{tagApartment: apartment}
	if r.Floor != "" {
		tags[tagFloor] = r.Floor
	}

	ts := r.ArrivedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		MeasurementElectricity,
		tags,
		map[string]any{
			reading.FieldVoltage: r.Voltage,
			reading.FieldCurrent: r.Current,
			reading.FieldPower:   r.Power,
		},
		ts,
	)
}
