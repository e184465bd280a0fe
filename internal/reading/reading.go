// Package reading defines the electricity Reading value, decodes inbound
// meter payloads into it and encodes the outbound wire record.
//
// Power is never trusted from the wire: Decode always recomputes it as
// voltage × current so every stored Reading is internally consistent.
package reading

import (
	"maps"
	"time"
)

// Wire field names.
const (
	FieldVoltage   = "voltage"
	FieldCurrent   = "current"
	FieldPower     = "power"
	FieldApartment = "apartment"
	FieldFloor     = "floor"
	FieldTimestamp = "timestamp"
)

// Reading is one validated measurement from a meter.
//
// Readings are passed by value. Extra is shared between copies made by plain
// assignment; use Clone before handing a Reading to code that may mutate it.
type Reading struct {
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	ArrivedAt time.Time `json:"arrived_at"`

	// Floor is the floor reported by the meter, if any.
	Floor string `json:"floor,omitempty"`

	// ReportedAt is the meter's own timestamp string. Informational only.
	ReportedAt string `json:"reported_at,omitempty"`

	// Extra holds every other payload field, untouched.
	Extra map[string]any `json:"extra,omitempty"`
}

// New builds a Reading with power derived from voltage and current.
func New(voltage, current float64, arrivedAt time.Time) Reading {
	return Reading{
		Voltage:   voltage,
		Current:   current,
		Power:     voltage * current,
		ArrivedAt: arrivedAt,
	}
}

// Clone returns a copy that shares no mutable state with r.
func (r Reading) Clone() Reading {
	if r.Extra != nil {
		r.Extra = maps.Clone(r.Extra)
	}
	return r
}
