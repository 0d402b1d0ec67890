package breezer

import (
	"encoding/json"
	"fmt"
)

// ParseCommandValue converts a raw JSON command value into the Go type
// ExecuteCommand expects for the field. Both the MQTT bridge and the
// HTTP API accept the same {"field": ..., "value": ...} shape and
// funnel through here.
//
// Mode accepts either the mode name or the numeric damper position.
func ParseCommandValue(fieldName string, raw json.RawMessage) (Field, any, error) {
	field := Field(fieldName)

	switch field {
	case FieldPower, FieldAutoNanny, FieldSleepMode:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return field, nil, fmt.Errorf("breezer: field %q wants a boolean: %w", fieldName, err)
		}
		return field, v, nil

	case FieldFanSpeed:
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return field, nil, fmt.Errorf("breezer: field %q wants an integer: %w", fieldName, err)
		}
		return field, v, nil

	case FieldHumidifierStage:
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return field, nil, fmt.Errorf("breezer: field %q wants an integer: %w", fieldName, err)
		}
		return field, HumidifierStage(v), nil

	case FieldTargetTemp:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return field, nil, fmt.Errorf("breezer: field %q wants a number: %w", fieldName, err)
		}
		return field, v, nil

	case FieldMode:
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			mode, ok := ParseMode(name)
			if !ok {
				return field, nil, fmt.Errorf("breezer: unknown mode %q", name)
			}
			return field, mode, nil
		}
		var num int
		if err := json.Unmarshal(raw, &num); err != nil {
			return field, nil, fmt.Errorf("breezer: field %q wants a mode name or number: %w", fieldName, err)
		}
		return field, Mode(num), nil

	default:
		return field, nil, fmt.Errorf("%w: %q", ErrUnknownField, fieldName)
	}
}
