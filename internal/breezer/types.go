package breezer

import (
	"strings"
	"time"

	"github.com/atmeex-community/breeze-core/internal/cloud"
)

// UnknownRoomTemp is the sentinel the cloud uses for "not yet reported".
// Consumers must never treat it as a real reading.
const UnknownRoomTemp = -100.0

// Fan speed and temperature domains.
const (
	FanSpeedMin = 1
	FanSpeedMax = 7

	TargetTempMin = 10.0
	TargetTempMax = 30.0
)

// Mode is the breezer operation mode, wire-encoded as the damper
// position 0-3.
type Mode int

const (
	ModeSupplyVentilation Mode = 0
	ModeRecirculation     Mode = 1
	ModeMixed             Mode = 2
	ModeSupplyValve       Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeSupplyVentilation:
		return "supply_ventilation"
	case ModeRecirculation:
		return "recirculation"
	case ModeMixed:
		return "mixed_mode"
	case ModeSupplyValve:
		return "supply_valve"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name to its wire value.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "supply_ventilation":
		return ModeSupplyVentilation, true
	case "recirculation":
		return ModeRecirculation, true
	case "mixed_mode":
		return ModeMixed, true
	case "supply_valve":
		return ModeSupplyValve, true
	default:
		return 0, false
	}
}

// HumidifierStage is the humidifier intensity: 0 = off, 1-3 = stages.
type HumidifierStage int

const (
	HumStageOff HumidifierStage = 0
	HumStageMax HumidifierStage = 3
)

// ModelClass groups device models by capability. The babycare class
// ships the AutoNanny automatic mode.
type ModelClass string

const (
	ModelStandard        ModelClass = "standard"
	ModelBabycareForever ModelClass = "babycare_forever"
)

// classifyModel maps a vendor model string to a ModelClass.
func classifyModel(model string) ModelClass {
	if strings.Contains(strings.ToLower(model), "babycare") {
		return ModelBabycareForever
	}
	return ModelStandard
}

// SupportsAutoNanny reports whether the model class ships AutoNanny.
func (m ModelClass) SupportsAutoNanny() bool {
	return m == ModelBabycareForever
}

// Field identifies a commandable DeviceState attribute.
type Field string

const (
	FieldPower           Field = "power"
	FieldFanSpeed        Field = "fan_speed"
	FieldMode            Field = "mode"
	FieldTargetTemp      Field = "target_temp"
	FieldHumidifierStage Field = "humidifier_stage"
	FieldAutoNanny       Field = "auto_nanny"
	FieldSleepMode       Field = "sleep_mode"
)

// Source records where a DeviceState snapshot came from.
type Source string

const (
	// SourcePoll marks state from a regular poll cycle.
	SourcePoll Source = "poll"

	// SourcePush marks state from a WebSocket push refresh.
	SourcePush Source = "push"

	// SourceOptimistic marks state published immediately after a
	// command, before the cloud confirmed it.
	SourceOptimistic Source = "optimistic"
)

// Device is the stable identity of a discovered breezer.
// Immutable once discovered; never destroyed while the session lives.
type Device struct {
	ID            string
	Name          string
	Model         ModelClass
	HasHumidifier bool
	FirstSeen     time.Time
}

// DeviceState is one immutable snapshot of a device's reconciled state.
type DeviceState struct {
	DeviceID string

	Power           bool
	FanSpeed        int // 0 = off, 1-7 running
	Mode            Mode
	TargetTemp      float64 // °C
	HumidifierStage HumidifierStage

	RoomTemp     float64 // °C, UnknownRoomTemp when not reported
	RoomHumidity *int    // percent, nil when absent

	AutoNanny bool
	SleepMode bool

	Online     bool
	ObservedAt time.Time
	Source     Source
}

// fieldValue returns the snapshot's value for a commandable field,
// used by the tracker for overlay and confirmation matching.
func (s DeviceState) fieldValue(field Field) any {
	switch field {
	case FieldPower:
		return s.Power
	case FieldFanSpeed:
		return s.FanSpeed
	case FieldMode:
		return s.Mode
	case FieldTargetTemp:
		return s.TargetTemp
	case FieldHumidifierStage:
		return s.HumidifierStage
	case FieldAutoNanny:
		return s.AutoNanny
	case FieldSleepMode:
		return s.SleepMode
	default:
		return nil
	}
}

// withField returns a copy of the snapshot with one field replaced by
// a commanded value.
func (s DeviceState) withField(field Field, value any) DeviceState {
	switch field {
	case FieldPower:
		if v, ok := value.(bool); ok {
			s.Power = v
		}
	case FieldFanSpeed:
		if v, ok := value.(int); ok {
			s.FanSpeed = v
		}
	case FieldMode:
		if v, ok := value.(Mode); ok {
			s.Mode = v
		}
	case FieldTargetTemp:
		if v, ok := value.(float64); ok {
			s.TargetTemp = v
		}
	case FieldHumidifierStage:
		if v, ok := value.(HumidifierStage); ok {
			s.HumidifierStage = v
		}
	case FieldAutoNanny:
		if v, ok := value.(bool); ok {
			s.AutoNanny = v
		}
	case FieldSleepMode:
		if v, ok := value.(bool); ok {
			s.SleepMode = v
		}
	}
	return s
}

// stateFromCloud converts a normalised cloud record into a DeviceState
// snapshot, translating wire units (deci-degrees) into domain units.
func stateFromCloud(d cloud.Device, observedAt time.Time, source Source) DeviceState {
	state := DeviceState{
		DeviceID:   d.ID,
		RoomTemp:   UnknownRoomTemp,
		Online:     d.Online,
		ObservedAt: observedAt,
		Source:     source,
	}

	if d.State.Power != nil {
		state.Power = *d.State.Power
	}
	if d.State.FanSpeed != nil {
		state.FanSpeed = *d.State.FanSpeed
	}
	if d.State.DamperPos != nil {
		state.Mode = Mode(*d.State.DamperPos)
	}
	if d.State.TargetTempDeci != nil {
		state.TargetTemp = float64(*d.State.TargetTempDeci) / 10.0
	}
	if d.State.HumStage != nil {
		state.HumidifierStage = HumidifierStage(*d.State.HumStage)
	}
	if d.State.RoomTempDeci != nil {
		state.RoomTemp = float64(*d.State.RoomTempDeci) / 10.0
	}
	if d.State.RoomHumidity != nil {
		hum := *d.State.RoomHumidity
		state.RoomHumidity = &hum
	}
	if d.State.AutoNanny != nil {
		state.AutoNanny = *d.State.AutoNanny
	}
	if d.State.SleepMode != nil {
		state.SleepMode = *d.State.SleepMode
	}

	return state
}

// deviceFromCloud builds the stable Device record for a newly
// discovered breezer. Humidifier capability is inferred from the cloud
// reporting a humidifier stage at all.
func deviceFromCloud(d cloud.Device, firstSeen time.Time) Device {
	return Device{
		ID:            d.ID,
		Name:          d.Name,
		Model:         classifyModel(d.Model),
		HasHumidifier: d.State.HumStage != nil,
		FirstSeen:     firstSeen,
	}
}
