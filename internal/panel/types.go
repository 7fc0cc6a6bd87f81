package panel

import "fmt"

// AreaState represents the armed status of an area.
type AreaState int

const (
	AreaStateDisarmed AreaState = iota
	AreaStateArmed
	AreaStateArmedPartial
)

func (a AreaState) String() string {
	switch a {
	case AreaStateDisarmed:
		return "disarmed"
	case AreaStateArmed:
		return "armed"
	case AreaStateArmedPartial:
		return "armed_partial"
	default:
		return fmt.Sprintf("unknown(%d)", a)
	}
}

// DeviceClass is the Home Assistant device class inferred for a zone. It is
// derived once from the zone name and never recomputed, so a renamed zone
// does not change entity type in the host.
type DeviceClass string

const (
	DeviceClassDoor    DeviceClass = "door"
	DeviceClassWindow  DeviceClass = "window"
	DeviceClassMotion  DeviceClass = "motion"
	DeviceClassTamper  DeviceClass = "tamper"
	DeviceClassOpening DeviceClass = "opening"
)

// Area is a panel-defined zone group with its own armed status.
type Area struct {
	ID           int
	Name         string
	Status       AreaState
	Alarm        bool
	AlarmMemory  bool
	Tamper       bool
	TamperMemory bool
}

// Zone is a single physical sensor input. AlarmMemory and TamperMemory are
// sticky flags the panel itself maintains; they pass through unmodified.
type Zone struct {
	ID           int
	Name         string
	AreaID       int
	Open         bool
	AlarmMemory  bool
	TamperMemory bool
	Bypassed     bool
	OutputOn     bool
	DeviceClass  DeviceClass
}

// Peripheral is a keypad, expander or module reporting its own health.
type Peripheral struct {
	ID      int
	Name    string
	Kind    string
	Voltage float64
}

// Gsm describes the panel's cellular module.
type Gsm struct {
	Operator       string
	SignalStrength int
	IMEI           string
	Is4G           bool
	HasGPRS        bool
	BatteryCharge  int
}

// Scenario is a named preset the panel can execute. Areas lists the areas the
// scenario arms.
type Scenario struct {
	ID    int
	Name  string
	Areas []int
}

// Central carries central-unit diagnostics.
type Central struct {
	Voltage       float64
	Faults        int
	NetworkStatus int
}

// State is one reconciled snapshot of a panel. A State is immutable once
// committed; updates always swap in a fresh State by reference, so readers
// never observe a torn snapshot.
type State struct {
	DeviceID       int
	Name           string
	SerialNumber   string
	Model          string
	Firmware       string
	ActiveScenario int
	Central        Central
	Areas          []Area
	Zones          []Zone
	Peripherals    []Peripheral
	Gsm            *Gsm
	Scenarios      []Scenario
}

// Area returns the area with the given id, or nil.
func (s *State) Area(id int) *Area {
	for i := range s.Areas {
		if s.Areas[i].ID == id {
			return &s.Areas[i]
		}
	}
	return nil
}

// Zone returns the zone with the given id, or nil.
func (s *State) Zone(id int) *Zone {
	for i := range s.Zones {
		if s.Zones[i].ID == id {
			return &s.Zones[i]
		}
	}
	return nil
}

// Scenario returns the scenario with the given id, or nil.
func (s *State) Scenario(id int) *Scenario {
	for i := range s.Scenarios {
		if s.Scenarios[i].ID == id {
			return &s.Scenarios[i]
		}
	}
	return nil
}

// AreaIDs returns the ids of all areas in snapshot order.
func (s *State) AreaIDs() []int {
	ids := make([]int, len(s.Areas))
	for i := range s.Areas {
		ids[i] = s.Areas[i].ID
	}
	return ids
}

// clone returns a deep copy safe to mutate while s stays visible to readers.
func (s *State) clone() *State {
	next := *s
	next.Areas = append([]Area(nil), s.Areas...)
	next.Zones = append([]Zone(nil), s.Zones...)
	next.Peripherals = append([]Peripheral(nil), s.Peripherals...)
	next.Scenarios = make([]Scenario, len(s.Scenarios))
	for i, sc := range s.Scenarios {
		sc.Areas = append([]int(nil), sc.Areas...)
		next.Scenarios[i] = sc
	}
	if s.Gsm != nil {
		gsm := *s.Gsm
		next.Gsm = &gsm
	}
	return &next
}

// EntityKind identifies which part of the model a StateChange refers to.
type EntityKind int

const (
	EntityArea EntityKind = iota
	EntityZone
	EntityPeripheral
	EntityGsm
	EntityCentral
)

func (e EntityKind) String() string {
	switch e {
	case EntityArea:
		return "area"
	case EntityZone:
		return "zone"
	case EntityPeripheral:
		return "peripheral"
	case EntityGsm:
		return "gsm"
	case EntityCentral:
		return "central"
	default:
		return fmt.Sprintf("unknown(%d)", e)
	}
}

// ChangeKind says whether an entity appeared, changed or disappeared.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// StateChange is one externally observable delta between two snapshots.
// Exactly one of the payload pointers matching Entity is set, except for
// removals which carry only the id.
type StateChange struct {
	Entity EntityKind
	Change ChangeKind
	ID     int

	Area       *Area
	Zone       *Zone
	Peripheral *Peripheral
	Gsm        *Gsm
	Central    *Central
}
