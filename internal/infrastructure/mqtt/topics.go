package mqtt

import "strings"

// Topic namespace for meter telemetry.
//
//	<prefix>/<floor>/<apartment>   published by meters
//	<prefix>/floor/<apartment>     published by PowerWatch tooling
//	<prefix>/+/+                   catch-all filter for both
const (
	// DefaultPrefix is the prefix meters ship with.
	DefaultPrefix = "electricity/building"

	// floorLiteral is the fixed second level used for per-apartment topics.
	floorLiteral = "floor"

	// ServiceStatusPrefix is the base for PowerWatch service status topics.
	ServiceStatusPrefix = "powerwatch/status"
)

// Topics builds topic names under one prefix.
//
//	topics := mqtt.Topics{Prefix: "electricity/building"}
//	topics.Apartment("301") // "electricity/building/floor/301"
type Topics struct {
	Prefix string
}

// trimmed returns the prefix without a trailing separator.
func (t Topics) trimmed() string {
	return strings.TrimSuffix(t.Prefix, "/")
}

// Apartment returns the per-apartment topic <prefix>/floor/<key>.
// It is both the filter the service subscribes to for a registered
// apartment and the topic the publisher writes to.
func (t Topics) Apartment(key string) string {
	return t.trimmed() + "/" + floorLiteral + "/" + key
}

// Reading returns the topic a meter on floor publishes to.
func (t Topics) Reading(floor, key string) string {
	return t.trimmed() + "/" + floor + "/" + key
}

// CatchAll returns <prefix>/+/+, matching every meter topic.
func (t Topics) CatchAll() string {
	return t.trimmed() + "/+/+"
}

// ServiceStatus returns the retained status topic for a service instance.
//
// Example: powerwatch/status/powerwatch-core
func ServiceStatus(clientID string) string {
	return ServiceStatusPrefix + "/" + clientID
}
