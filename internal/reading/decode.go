package reading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Decode parses a meter payload into a validated Reading.
//
// The payload must be a JSON object with numeric "voltage" and "current"
// fields. Numbers encoded as JSON strings ("230.5") are accepted. Values are
// not range-checked, so a negative current is stored as reported. A
// transmitted "power" is ignored and recomputed.
//
// Parameters:
//   - payload: Raw message bytes
//   - arrivedAt: When the message reached the service
//
// Returns:
//   - Reading: The decoded reading
//   - error: *MissingFieldError or ErrMalformedPayload (wrapped)
func Decode(payload []byte, arrivedAt time.Time) (Reading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if fields == nil {
		return Reading{}, fmt.Errorf("%w: payload is null", ErrMalformedPayload)
	}

	voltage, err := requiredNumber(fields, FieldVoltage)
	if err != nil {
		return Reading{}, err
	}
	current, err := requiredNumber(fields, FieldCurrent)
	if err != nil {
		return Reading{}, err
	}

	r := New(voltage, current, arrivedAt)

	for name, raw := range fields {
		switch name {
		case FieldVoltage, FieldCurrent, FieldPower:
			continue
		case FieldFloor, FieldTimestamp:
			if s, ok := scalarString(raw); ok {
				if name == FieldFloor {
					r.Floor = s
				} else {
					r.ReportedAt = s
				}
				continue
			}
		}

		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return Reading{}, fmt.Errorf("%w: field %q: %w", ErrMalformedPayload, name, err)
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[name] = v
	}

	return r, nil
}

// requiredNumber extracts a finite number from a required field.
func requiredNumber(fields map[string]json.RawMessage, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, &MissingFieldError{Field: name}
	}

	v, err := parseNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %w", ErrMalformedPayload, name, err)
	}
	return v, nil
}

// parseNumber accepts a JSON number or a string holding one.
func parseNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("empty value")
	}

	var v float64
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		v = parsed
	case c == '-' || (c >= '0' && c <= '9'):
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("not a number: %s", raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %s", raw)
	}
	return v, nil
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case c == '-' || (c >= '0' && c <= '9'):
		return string(raw), true
	default:
		return "", false
	}
}
