package inim

import "encoding/json"

// request is the envelope every cloud call is wrapped in. It travels as
// compact JSON in the "req" query parameter.
type request struct {
	Node     string      `json:"Node"`
	Name     string      `json:"Name"`
	ClientIP string      `json:"ClientIP"`
	Method   string      `json:"Method"`
	ClientID string      `json:"ClientId"`
	Token    string      `json:"Token"`
	Context  string      `json:"Context,omitempty"`
	Params   interface{} `json:"Params"`
}

// envelope is the common response wrapper. Status 0 means success.
type envelope struct {
	Status int             `json:"Status"`
	ErrMsg string          `json:"ErrMsg"`
	Data   json.RawMessage `json:"Data"`
}

type loginParams struct {
	Username   string `json:"Username"`
	Password   string `json:"Password"`
	ClientID   string `json:"ClientId"`
	ClientName string `json:"ClientName"`
	ClientInfo string `json:"ClientInfo"`
	Role       string `json:"Role"`
	Brand      string `json:"Brand"`
}

type loginData struct {
	Token string `json:"Token"`
	TTL   int    `json:"TTL"`
}

type devicesParams struct {
	Info string `json:"Info"`
}

type devicesData struct {
	Devices []Device `json:"Devices"`
}

type pollParams struct {
	DeviceID int `json:"DeviceId"`
	Type     int `json:"Type"`
}

type scenarioParams struct {
	ScenarioID int `json:"ScenarioId"`
	DeviceID   int `json:"DeviceId"`
}

type insertAreasParams struct {
	AreaIDs  []int  `json:"AreaIds"`
	Mode     int    `json:"Mode"`
	DeviceID string `json:"DeviceId"`
	Code     string `json:"Code"`
}

type insertZoneParams struct {
	ZoneID   int    `json:"ZoneId"`
	Mode     int    `json:"Mode"`
	DeviceID string `json:"DeviceId"`
	Code     string `json:"Code"`
	Value    int    `json:"Value"`
}

// Device is the raw per-panel snapshot returned by GetDevicesExtended. It is
// immutable once received and superseded wholesale by the next fetch.
type Device struct {
	DeviceID             int          `json:"DeviceId"`
	Name                 string       `json:"Name"`
	SerialNumber         string       `json:"SerialNumber"`
	ModelFamily          string       `json:"ModelFamily"`
	ModelNumber          string       `json:"ModelNumber"`
	FirmwareVersionMajor int          `json:"FirmwareVersionMajor"`
	FirmwareVersionMinor int          `json:"FirmwareVersionMinor"`
	Voltage              float64      `json:"Voltage"`
	ActiveScenario       int          `json:"ActiveScenario"`
	NetworkStatus        int          `json:"NetworkStatus"`
	Faults               int          `json:"Faults"`
	Areas                []Area       `json:"Areas"`
	Zones                []Zone       `json:"Zones"`
	Scenarios            []Scenario   `json:"Scenarios"`
	Peripherals          []Peripheral `json:"Peripherals"`
	Gsm                  *Gsm         `json:"Gsm"`
}

// Area armed values on the wire: 1 armed, 2 and 3 partial, 4 disarmed.
type Area struct {
	AreaID       int    `json:"AreaId"`
	Name         string `json:"Name"`
	Armed        int    `json:"Armed"`
	Alarm        int    `json:"Alarm"`
	AlarmMemory  int    `json:"AlarmMemory"`
	Tamper       int    `json:"Tamper"`
	TamperMemory int    `json:"TamperMemory"`
	AutoInsert   int    `json:"AutoInsert"`
}

// Zone status on the wire: 1 closed, 2 open. Areas is a bitmask of the areas
// the zone belongs to. Visibility 0 marks zones hidden on the keypad.
type Zone struct {
	ZoneID       int     `json:"ZoneId"`
	Name         string  `json:"Name"`
	Type         int     `json:"Type"`
	TerminalID   int     `json:"TerminalId"`
	Areas        int     `json:"Areas"`
	Status       int     `json:"Status"`
	AlarmMemory  int     `json:"AlarmMemory"`
	TamperMemory int     `json:"TamperMemory"`
	Bypass       bool    `json:"Bypass"`
	OutputOn     int     `json:"OutputOn"`
	OutputValue  int     `json:"OutputValue"`
	Voltage      float64 `json:"Voltage"`
	Power        float64 `json:"Power"`
	Visibility   int     `json:"Visibility"`
}

type Scenario struct {
	ScenarioID int    `json:"ScenarioId"`
	Name       string `json:"Name"`
	Areas      []int  `json:"Areas"`
}

type Peripheral struct {
	PeripheralID int     `json:"PeripheralId"`
	Name         string  `json:"Name"`
	Type         string  `json:"Type"`
	Voltage      float64 `json:"Voltage"`
}

type Gsm struct {
	Operator       string `json:"Operator"`
	SignalStrength int    `json:"SignalStrength"`
	Imei           string `json:"Imei"`
	Is4G           bool   `json:"Is4G"`
	HasGprs        bool   `json:"HasGprs"`
	BatteryCharge  int    `json:"BatteryCharge"`
}

const (
	// Zone wire statuses: 1 closed, 2 open; higher values are alarm variants.
	zoneStatusOpen = 2

	// Area armed values. 4 (disarmed) is whatever matches none of these.
	areaArmedFull    = 1
	areaArmedStay    = 2
	areaArmedInstant = 3

	// InsertZone modes.
	bypassModeNormal = 0
	bypassModeBypass = 3

	// InsertAreas modes.
	areaModeArm    = 0
	areaModeDisarm = 3
)

// ZoneOpen reports whether a wire zone status means open. Statuses above open
// (alarm variants) read as open too.
func ZoneOpen(status int) bool {
	return status >= zoneStatusOpen
}

// AreaArmedFull reports whether a wire armed value means fully armed.
func AreaArmedFull(armed int) bool {
	return armed == areaArmedFull
}

// AreaArmedPartial reports whether a wire armed value means one of the
// partial-arm modes (stay or instant).
func AreaArmedPartial(armed int) bool {
	return armed == areaArmedStay || armed == areaArmedInstant
}
