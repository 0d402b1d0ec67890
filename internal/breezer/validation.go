package breezer

import "fmt"

// validateCommand checks a command value against its field's domain
// before any network call. Returns *ValidationError on rejection.
//
// Domains:
//   - power, auto_nanny, sleep_mode: bool
//   - fan_speed: int 1-7 (0 is only ever a reported state, not a command)
//   - mode: one of the four damper positions
//   - target_temp: float64 10-30 °C
//   - humidifier_stage: 0-3
func validateCommand(field Field, value any) error {
	switch field {
	case FieldPower, FieldAutoNanny, FieldSleepMode:
		if _, ok := value.(bool); !ok {
			return &ValidationError{Field: field, Value: value, Message: "expected bool"}
		}

	case FieldFanSpeed:
		v, ok := value.(int)
		if !ok {
			return &ValidationError{Field: field, Value: value, Message: "expected int"}
		}
		if v < FanSpeedMin || v > FanSpeedMax {
			return &ValidationError{Field: field, Value: value,
				Message: fmt.Sprintf("fan speed must be %d-%d", FanSpeedMin, FanSpeedMax)}
		}

	case FieldMode:
		v, ok := value.(Mode)
		if !ok {
			return &ValidationError{Field: field, Value: value, Message: "expected Mode"}
		}
		if v < ModeSupplyVentilation || v > ModeSupplyValve {
			return &ValidationError{Field: field, Value: value, Message: "unknown mode"}
		}

	case FieldTargetTemp:
		v, ok := value.(float64)
		if !ok {
			return &ValidationError{Field: field, Value: value, Message: "expected float64"}
		}
		if v < TargetTempMin || v > TargetTempMax {
			return &ValidationError{Field: field, Value: value,
				Message: fmt.Sprintf("temperature must be %.0f-%.0f °C", TargetTempMin, TargetTempMax)}
		}

	case FieldHumidifierStage:
		v, ok := value.(HumidifierStage)
		if !ok {
			return &ValidationError{Field: field, Value: value, Message: "expected HumidifierStage"}
		}
		if v < HumStageOff || v > HumStageMax {
			return &ValidationError{Field: field, Value: value, Message: "stage must be 0-3"}
		}

	default:
		return ErrUnknownField
	}

	return nil
}
