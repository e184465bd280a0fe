package reading

import (
	"encoding/json"
	"time"
)

// Payload is the outbound wire record published for one meter sample.
type Payload struct {
	Voltage   float64
	Current   float64
	Apartment string
	Floor     string
	Timestamp time.Time

	// Extra fields are merged into the top-level object. Core fields win
	// when a name collides.
	Extra map[string]any
}

// Power returns the derived power carried in the payload for readability.
func (p Payload) Power() float64 {
	return p.Voltage * p.Current
}

// MarshalJSON flattens core and extra fields into one JSON object.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+6)
	for k, v := range p.Extra {
		out[k] = v
	}

	out[FieldVoltage] = p.Voltage
	out[FieldCurrent] = p.Current
	out[FieldPower] = p.Power()
	out[FieldApartment] = p.Apartment
	if p.Floor != "" {
		out[FieldFloor] = p.Floor
	}
	if !p.Timestamp.IsZero() {
		out[FieldTimestamp] = p.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	return json.Marshal(out)
}

// Encode serialises a payload for publishing.
func Encode(p Payload) ([]byte, error) {
	return json.Marshal(p)
}
