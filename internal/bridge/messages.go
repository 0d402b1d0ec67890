package bridge

import (
	"encoding/json"
	"time"

	"github.com/atmeex-community/breeze-core/internal/breezer"
)

// StateMessage is the JSON payload published retained on the per-device
// state topic after every reconciliation.
type StateMessage struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name,omitempty"`
	Model    string `json:"model,omitempty"`
	Online   bool   `json:"online"`

	Power           bool    `json:"power"`
	FanSpeed        int     `json:"fan_speed"`
	Mode            string  `json:"mode"`
	TargetTemp      float64 `json:"target_temp"`
	HumidifierStage int     `json:"humidifier_stage"`

	// RoomTemp is omitted while the device has not reported a reading.
	RoomTemp     *float64 `json:"room_temp,omitempty"`
	RoomHumidity *int     `json:"room_humidity,omitempty"`

	AutoNanny bool `json:"auto_nanny"`
	SleepMode bool `json:"sleep_mode"`

	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
}

// newStateMessage flattens a reconciled snapshot plus its device record
// into the wire shape.
func newStateMessage(device breezer.Device, state breezer.DeviceState) StateMessage {
	msg := StateMessage{
		DeviceID:        state.DeviceID,
		Name:            device.Name,
		Model:           string(device.Model),
		Online:          state.Online,
		Power:           state.Power,
		FanSpeed:        state.FanSpeed,
		Mode:            state.Mode.String(),
		TargetTemp:      state.TargetTemp,
		HumidifierStage: int(state.HumidifierStage),
		RoomHumidity:    state.RoomHumidity,
		AutoNanny:       state.AutoNanny,
		SleepMode:       state.SleepMode,
		ObservedAt:      state.ObservedAt,
		Source:          string(state.Source),
	}
	if state.RoomTemp != breezer.UnknownRoomTemp {
		temp := state.RoomTemp
		msg.RoomTemp = &temp
	}
	return msg
}

// CommandMessage is the JSON payload external systems publish on the
// per-device command topic.
//
//	{"field": "fan_speed", "value": 5}
//	{"field": "mode", "value": "recirculation"}
type CommandMessage struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// decodeValue converts the raw JSON value into the Go type the
// coordinator expects for the field.
func (m CommandMessage) decodeValue() (breezer.Field, any, error) {
	return breezer.ParseCommandValue(m.Field, m.Value)
}

// Ack statuses.
const (
	AckAccepted = "accepted"
	AckRejected = "rejected"
	AckFailed   = "failed"
)

// AckMessage is published on the per-device ack topic after every
// command attempt.
type AckMessage struct {
	DeviceID  string    `json:"device_id"`
	Field     string    `json:"field"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthMessage is the periodic service health report.
type HealthMessage struct {
	Service       string              `json:"service"`
	Status        string              `json:"status"`
	Timestamp     time.Time           `json:"timestamp"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	MQTTConnected bool                `json:"mqtt_connected"`
	Devices       int                 `json:"devices"`
	DevicesOnline int                 `json:"devices_online"`
	Diagnostics   breezer.Diagnostics `json:"diagnostics"`
}
