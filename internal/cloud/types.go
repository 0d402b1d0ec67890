package cloud

import (
	"encoding/json"
	"fmt"
)

// Device is a normalised device record as returned by the cloud.
//
// State fields are already merged condition-over-settings (reported
// values win over requested ones) and carry wire units: temperatures in
// deci-degrees Celsius, fan speed 0-7, damper position 0-3.
type Device struct {
	ID     string
	Name   string
	Model  string
	Online bool
	State  StateFields
}

// StateFields holds the normalised device parameters in wire units.
// Nil means the cloud did not report the field.
type StateFields struct {
	Power          *bool
	FanSpeed       *int
	DamperPos      *int
	TargetTempDeci *int
	HumStage       *int
	RoomTempDeci   *int
	RoomHumidity   *int
	AutoNanny      *bool
	SleepMode      *bool
}

// rawDevice mirrors the vendor JSON. The backend returns numeric device
// ids; json.Number keeps them intact either way.
type rawDevice struct {
	ID        json.Number   `json:"id"`
	Name      string        `json:"name"`
	Model     string        `json:"model"`
	Online    *bool         `json:"online"`
	Condition *rawCondition `json:"condition"`
	Settings  *rawSettings  `json:"settings"`
}

// rawCondition is the device-reported state block.
type rawCondition struct {
	PwrOn     *bool `json:"pwr_on"`
	FanSpeed  *int  `json:"fan_speed"`
	DampPos   *int  `json:"damp_pos"`
	HumStg    *int  `json:"hum_stg"`
	HumRoom   *int  `json:"hum_room"`
	TempRoom  *int  `json:"temp_room"`
	UTempRoom *int  `json:"u_temp_room"`
	UAuto     *bool `json:"u_auto"`
	UNight    *bool `json:"u_night"`
}

// rawSettings is the user-requested state block.
type rawSettings struct {
	UPwrOn    *bool `json:"u_pwr_on"`
	UFanSpeed *int  `json:"u_fan_speed"`
	UDampPos  *int  `json:"u_damp_pos"`
	UTempRoom *int  `json:"u_temp_room"`
	UHumStg   *int  `json:"u_hum_stg"`
	UAuto     *bool `json:"u_auto"`
	UNight    *bool `json:"u_night"`
}

// normalize merges condition over settings into a Device.
//
// Reported values (condition) always win. Settings fill gaps where the
// device has not yet echoed a requested value back, with one exception:
// a reported fan speed of 0 on a powered-on device is treated as a
// not-yet-applied request and replaced by the requested speed.
func (r rawDevice) normalize() Device {
	cond := r.Condition
	if cond == nil {
		cond = &rawCondition{}
	}
	st := r.Settings
	if st == nil {
		st = &rawSettings{}
	}

	var fields StateFields

	power := cond.PwrOn
	if power == nil {
		power = st.UPwrOn
	}
	fields.Power = power

	fan := cond.FanSpeed
	if (fan == nil || *fan == 0) &&
		power != nil && *power &&
		st.UFanSpeed != nil && *st.UFanSpeed > 0 {
		fan = st.UFanSpeed
	}
	fields.FanSpeed = fan

	fields.DamperPos = cond.DampPos
	if fields.DamperPos == nil {
		fields.DamperPos = st.UDampPos
	}

	fields.TargetTempDeci = cond.UTempRoom
	if fields.TargetTempDeci == nil {
		fields.TargetTempDeci = st.UTempRoom
	}

	fields.HumStage = cond.HumStg
	if fields.HumStage == nil {
		fields.HumStage = st.UHumStg
	}

	// Current readings come from condition only.
	fields.RoomTempDeci = cond.TempRoom
	fields.RoomHumidity = cond.HumRoom

	fields.AutoNanny = cond.UAuto
	if fields.AutoNanny == nil {
		fields.AutoNanny = st.UAuto
	}
	fields.SleepMode = cond.UNight
	if fields.SleepMode == nil {
		fields.SleepMode = st.UNight
	}

	id := r.ID.String()
	name := r.Name
	if name == "" {
		name = fmt.Sprintf("Device %s", id)
	}

	// The backend omits the online flag for healthy devices.
	online := true
	if r.Online != nil {
		online = *r.Online
	}

	return Device{
		ID:     id,
		Name:   name,
		Model:  r.Model,
		Online: online,
		State:  fields,
	}
}

// signinResponse is the body of POST /auth/signin.
type signinResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	TokenType   string `json:"token_type"`
}

// deviceListResponse accepts both response shapes the backend is known
// to return: a bare JSON array or an {"items": [...]} wrapper.
type deviceListResponse struct {
	items []rawDevice
}

func (d *deviceListResponse) UnmarshalJSON(data []byte) error {
	var list []rawDevice
	if err := json.Unmarshal(data, &list); err == nil {
		d.items = list
		return nil
	}
	var wrapped struct {
		Items []rawDevice `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	d.items = wrapped.Items
	return nil
}
