package panel

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/daemonp/inim2mqtt/internal/inim"
	"github.com/daemonp/inim2mqtt/internal/util"
)

// Zone-name keywords used for device-class inference. The panels this was
// built against are labelled in Italian, with English fallbacks.
var (
	tamperKeywords = []string{"tamper", "sirena"}
	motionKeywords = []string{"pir", "movimento", "motion", "volumetrico"}
	doorKeywords   = []string{"porta", "ingr", "scorr", "door", "gate", "cancell"}
	windowKeywords = []string{
		"finestra", "f.", "f:", "window", "cam.", "bagno", "cucina",
		"salotto", "studio", "palestra", "svago", "quadro",
	}
)

func guessDeviceClass(name string) DeviceClass {
	name = strings.ToLower(name)

	switch {
	case util.ContainsAny(name, tamperKeywords):
		return DeviceClassTamper
	case util.ContainsAny(name, motionKeywords):
		return DeviceClassMotion
	case util.ContainsAny(name, doorKeywords):
		return DeviceClassDoor
	case util.ContainsAny(name, windowKeywords):
		return DeviceClassWindow
	default:
		return DeviceClassOpening
	}
}

// Reconciler turns raw snapshots into the domain model and diffs consecutive
// snapshots into StateChange events. Its internal state (the device-class
// memo) is owned by the poll coordinator's single execution context.
type Reconciler struct {
	classes map[int]DeviceClass
}

func NewReconciler() *Reconciler {
	return &Reconciler{classes: make(map[int]DeviceClass)}
}

// deviceClass infers the class for a zone id once and memoizes it.
// Recomputing on every poll would falsely emit change events in the host
// whenever the panel reports a tweaked name.
func (r *Reconciler) deviceClass(id int, name string) DeviceClass {
	if class, ok := r.classes[id]; ok {
		return class
	}
	class := guessDeviceClass(name)
	r.classes[id] = class
	return class
}

// SeedClass pre-populates the device-class memo, used when restoring a cached
// snapshot so classes stay stable across restarts.
func (r *Reconciler) SeedClass(id int, class DeviceClass) {
	if class != "" {
		r.classes[id] = class
	}
}

// FromDevice converts a raw cloud snapshot into the domain model.
func (r *Reconciler) FromDevice(d *inim.Device) *State {
	s := &State{
		DeviceID:       d.DeviceID,
		Name:           util.Normalize(d.Name),
		SerialNumber:   d.SerialNumber,
		Model:          strings.TrimSpace(fmt.Sprintf("%s %s", d.ModelFamily, d.ModelNumber)),
		Firmware:       fmt.Sprintf("%d.%d", d.FirmwareVersionMajor, d.FirmwareVersionMinor),
		ActiveScenario: d.ActiveScenario,
		Central: Central{
			Voltage:       util.Round(d.Voltage, 2),
			Faults:        d.Faults,
			NetworkStatus: d.NetworkStatus,
		},
	}

	for _, a := range d.Areas {
		s.Areas = append(s.Areas, Area{
			ID:           a.AreaID,
			Name:         util.Normalize(a.Name),
			Status:       areaStateFromWire(a.Armed),
			Alarm:        a.Alarm > 0,
			AlarmMemory:  a.AlarmMemory > 0,
			Tamper:       a.Tamper > 0,
			TamperMemory: a.TamperMemory > 0,
		})
	}

	for _, z := range d.Zones {
		if z.Visibility == 0 {
			continue
		}
		name := util.Normalize(z.Name)
		s.Zones = append(s.Zones, Zone{
			ID:           z.ZoneID,
			Name:         name,
			AreaID:       firstAreaID(z.Areas),
			Open:         inim.ZoneOpen(z.Status),
			AlarmMemory:  z.AlarmMemory > 0,
			TamperMemory: z.TamperMemory > 0,
			Bypassed:     z.Bypass,
			OutputOn:     z.OutputOn > 0,
			DeviceClass:  r.deviceClass(z.ZoneID, name),
		})
	}

	for _, p := range d.Peripherals {
		s.Peripherals = append(s.Peripherals, Peripheral{
			ID:      p.PeripheralID,
			Name:    util.Normalize(p.Name),
			Kind:    p.Type,
			Voltage: util.Round(p.Voltage, 2),
		})
	}

	if d.Gsm != nil {
		s.Gsm = &Gsm{
			Operator:       d.Gsm.Operator,
			SignalStrength: d.Gsm.SignalStrength,
			IMEI:           d.Gsm.Imei,
			Is4G:           d.Gsm.Is4G,
			HasGPRS:        d.Gsm.HasGprs,
			BatteryCharge:  d.Gsm.BatteryCharge,
		}
	}

	for _, sc := range d.Scenarios {
		s.Scenarios = append(s.Scenarios, Scenario{
			ID:    sc.ScenarioID,
			Name:  util.Normalize(sc.Name),
			Areas: append([]int(nil), sc.Areas...),
		})
	}

	return s
}

func areaStateFromWire(armed int) AreaState {
	switch {
	case inim.AreaArmedFull(armed):
		return AreaStateArmed
	case inim.AreaArmedPartial(armed):
		return AreaStateArmedPartial
	default:
		return AreaStateDisarmed
	}
}

// firstAreaID maps the wire area bitmask to the lowest-numbered area.
func firstAreaID(mask int) int {
	if mask == 0 {
		return 0
	}
	return bits.TrailingZeros(uint(mask)) + 1
}

// Reconcile diffs two snapshots by id and returns one StateChange per entity
// whose externally observable value differs. A nil prev (first poll) reports
// every entity as added. Reconciling identical snapshots yields nothing.
func (r *Reconciler) Reconcile(prev, next *State) []StateChange {
	var changes []StateChange

	prevAreas := map[int]Area{}
	prevZones := map[int]Zone{}
	prevPeripherals := map[int]Peripheral{}
	if prev != nil {
		for _, a := range prev.Areas {
			prevAreas[a.ID] = a
		}
		for _, z := range prev.Zones {
			prevZones[z.ID] = z
		}
		for _, p := range prev.Peripherals {
			prevPeripherals[p.ID] = p
		}
	}

	for i := range next.Areas {
		a := &next.Areas[i]
		old, ok := prevAreas[a.ID]
		switch {
		case !ok:
			changes = append(changes, StateChange{Entity: EntityArea, Change: ChangeAdded, ID: a.ID, Area: a})
		case old != *a:
			changes = append(changes, StateChange{Entity: EntityArea, Change: ChangeUpdated, ID: a.ID, Area: a})
		}
		delete(prevAreas, a.ID)
	}
	for id := range prevAreas {
		changes = append(changes, StateChange{Entity: EntityArea, Change: ChangeRemoved, ID: id})
	}

	for i := range next.Zones {
		z := &next.Zones[i]
		old, ok := prevZones[z.ID]
		switch {
		case !ok:
			changes = append(changes, StateChange{Entity: EntityZone, Change: ChangeAdded, ID: z.ID, Zone: z})
		case old != *z:
			changes = append(changes, StateChange{Entity: EntityZone, Change: ChangeUpdated, ID: z.ID, Zone: z})
		}
		delete(prevZones, z.ID)
	}
	for id := range prevZones {
		changes = append(changes, StateChange{Entity: EntityZone, Change: ChangeRemoved, ID: id})
	}

	for i := range next.Peripherals {
		p := &next.Peripherals[i]
		old, ok := prevPeripherals[p.ID]
		switch {
		case !ok:
			changes = append(changes, StateChange{Entity: EntityPeripheral, Change: ChangeAdded, ID: p.ID, Peripheral: p})
		case old != *p:
			changes = append(changes, StateChange{Entity: EntityPeripheral, Change: ChangeUpdated, ID: p.ID, Peripheral: p})
		}
		delete(prevPeripherals, p.ID)
	}
	for id := range prevPeripherals {
		changes = append(changes, StateChange{Entity: EntityPeripheral, Change: ChangeRemoved, ID: id})
	}

	if next.Gsm != nil {
		switch {
		case prev == nil || prev.Gsm == nil:
			changes = append(changes, StateChange{Entity: EntityGsm, Change: ChangeAdded, Gsm: next.Gsm})
		case *prev.Gsm != *next.Gsm:
			changes = append(changes, StateChange{Entity: EntityGsm, Change: ChangeUpdated, Gsm: next.Gsm})
		}
	} else if prev != nil && prev.Gsm != nil {
		changes = append(changes, StateChange{Entity: EntityGsm, Change: ChangeRemoved})
	}

	switch {
	case prev == nil:
		changes = append(changes, StateChange{Entity: EntityCentral, Change: ChangeAdded, Central: &next.Central})
	case prev.Central != next.Central || prev.ActiveScenario != next.ActiveScenario:
		changes = append(changes, StateChange{Entity: EntityCentral, Change: ChangeUpdated, Central: &next.Central})
	}

	return changes
}
