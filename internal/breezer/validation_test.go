package breezer

import (
	"errors"
	"testing"
)

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		field   Field
		value   any
		wantErr bool
	}{
		{"power on", FieldPower, true, false},
		{"power wrong type", FieldPower, 1, true},

		{"fan speed minimum", FieldFanSpeed, 1, false},
		{"fan speed maximum", FieldFanSpeed, 7, false},
		{"fan speed zero", FieldFanSpeed, 0, true},
		{"fan speed too high", FieldFanSpeed, 8, true},
		{"fan speed wrong type", FieldFanSpeed, "7", true},

		{"mode supply", FieldMode, ModeSupplyVentilation, false},
		{"mode valve", FieldMode, ModeSupplyValve, false},
		{"mode out of range", FieldMode, Mode(4), true},

		{"temp minimum", FieldTargetTemp, 10.0, false},
		{"temp maximum", FieldTargetTemp, 30.0, false},
		{"temp too hot", FieldTargetTemp, 35.0, true},
		{"temp too cold", FieldTargetTemp, 5.0, true},
		{"temp wrong type", FieldTargetTemp, 21, true},

		{"humidifier off", FieldHumidifierStage, HumStageOff, false},
		{"humidifier stage 3", FieldHumidifierStage, HumidifierStage(3), false},
		{"humidifier stage 4", FieldHumidifierStage, HumidifierStage(4), true},

		{"auto nanny", FieldAutoNanny, true, false},
		{"sleep mode", FieldSleepMode, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCommand(tt.field, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateCommand(%s, %v) error = %v, wantErr %v",
					tt.field, tt.value, err, tt.wantErr)
			}
			if err != nil {
				var validationErr *ValidationError
				if !errors.As(err, &validationErr) {
					t.Errorf("error type = %T, want *ValidationError", err)
				}
			}
		})
	}
}

func TestValidateUnknownField(t *testing.T) {
	err := validateCommand(Field("volume"), 11)
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("validateCommand(unknown) error = %v, want ErrUnknownField", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"supply_ventilation", ModeSupplyVentilation, true},
		{"recirculation", ModeRecirculation, true},
		{"mixed_mode", ModeMixed, true},
		{"supply_valve", ModeSupplyValve, true},
		{"turbo", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMode(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClassifyModel(t *testing.T) {
	if got := classifyModel("Atmeex Babycare Forever"); got != ModelBabycareForever {
		t.Errorf("classifyModel(babycare) = %v, want babycare_forever", got)
	}
	if got := classifyModel("AP-7"); got != ModelStandard {
		t.Errorf("classifyModel(AP-7) = %v, want standard", got)
	}
	if !ModelBabycareForever.SupportsAutoNanny() {
		t.Error("babycare_forever should support AutoNanny")
	}
	if ModelStandard.SupportsAutoNanny() {
		t.Error("standard must not support AutoNanny")
	}
}
