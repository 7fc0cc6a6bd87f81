package panel

import (
	"context"
	"fmt"

	"github.com/daemonp/inim2mqtt/internal/inim"
	"github.com/daemonp/inim2mqtt/internal/log"
)

// IntentKind enumerates the mutating commands the boundary can issue.
type IntentKind int

const (
	IntentArmArea IntentKind = iota
	IntentDisarmArea
	IntentArmAll
	IntentDisarmAll
	IntentBypassZone
	IntentActivateScenario
)

func (k IntentKind) String() string {
	switch k {
	case IntentArmArea:
		return "arm_area"
	case IntentDisarmArea:
		return "disarm_area"
	case IntentArmAll:
		return "arm_all"
	case IntentDisarmAll:
		return "disarm_all"
	case IntentBypassZone:
		return "bypass_zone"
	case IntentActivateScenario:
		return "activate_scenario"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Intent is a transient command description; it exists only for the duration
// of dispatch plus the confirmation window.
type Intent struct {
	Kind       IntentKind
	AreaID     int
	ZoneID     int
	ScenarioID int
	Bypass     bool
}

// cloudAPI is the slice of the cloud client the dispatcher needs.
type cloudAPI interface {
	SetAreas(ctx context.Context, deviceID int, areaIDs []int, arm bool, userCode string) error
	SetZoneBypass(ctx context.Context, deviceID, zoneID int, bypass bool, userCode string) error
	ActivateScenario(ctx context.Context, deviceID, scenarioID int) error
}

// Dispatcher validates and sends mutating commands, applies an optimistic
// overlay on success and requests an immediate confirmation poll. It does not
// queue: overlapping contradictory commands are last-write-wins.
type Dispatcher struct {
	log      *log.Logger
	api      cloudAPI
	userCode string

	state     func() *State
	overlay   func(mutate func(s *State))
	forcePoll func()
}

func NewDispatcher(logger *log.Logger, api cloudAPI, userCode string, state func() *State, overlay func(func(*State)), forcePoll func()) *Dispatcher {
	return &Dispatcher{
		log:       logger,
		api:       api,
		userCode:  userCode,
		state:     state,
		overlay:   overlay,
		forcePoll: forcePoll,
	}
}

// Dispatch executes intent. On failure no optimistic state is applied and the
// error carries its classification. On success the relevant snapshot field is
// flipped immediately so the boundary reflects the new intent before the
// confirmation poll lands; the poll's authoritative value always wins.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent) error {
	s := d.state()
	if s == nil {
		return &inim.Error{Kind: inim.KindValidation, Msg: "no snapshot loaded yet"}
	}

	var apply func(*State)

	switch intent.Kind {
	case IntentArmArea, IntentDisarmArea:
		if s.Area(intent.AreaID) == nil {
			return &inim.Error{Kind: inim.KindValidation, Msg: fmt.Sprintf("unknown area %d", intent.AreaID)}
		}
		arm := intent.Kind == IntentArmArea
		if d.userCode == "" {
			return &inim.Error{Kind: inim.KindPrecondition, Msg: "user code not configured"}
		}
		if err := d.api.SetAreas(ctx, s.DeviceID, []int{intent.AreaID}, arm, d.userCode); err != nil {
			return err
		}
		apply = setAreaStatus([]int{intent.AreaID}, arm)
		d.log.Info("Area %d %s", intent.AreaID, armWord(arm))

	case IntentArmAll, IntentDisarmAll:
		arm := intent.Kind == IntentArmAll
		if d.userCode == "" {
			return &inim.Error{Kind: inim.KindPrecondition, Msg: "user code not configured"}
		}
		ids := s.AreaIDs()
		if len(ids) == 0 {
			return &inim.Error{Kind: inim.KindValidation, Msg: "no areas in snapshot"}
		}
		if err := d.api.SetAreas(ctx, s.DeviceID, ids, arm, d.userCode); err != nil {
			return err
		}
		apply = setAreaStatus(ids, arm)
		d.log.Info("All areas %s", armWord(arm))

	case IntentBypassZone:
		if s.Zone(intent.ZoneID) == nil {
			return &inim.Error{Kind: inim.KindValidation, Msg: fmt.Sprintf("unknown zone %d", intent.ZoneID)}
		}
		if d.userCode == "" {
			return &inim.Error{Kind: inim.KindPrecondition, Msg: "user code not configured"}
		}
		if err := d.api.SetZoneBypass(ctx, s.DeviceID, intent.ZoneID, intent.Bypass, d.userCode); err != nil {
			return err
		}
		bypass := intent.Bypass
		apply = func(s *State) {
			if z := s.Zone(intent.ZoneID); z != nil {
				z.Bypassed = bypass
			}
		}
		d.log.Info("Zone %d bypass set to %v", intent.ZoneID, bypass)

	case IntentActivateScenario:
		scenario := s.Scenario(intent.ScenarioID)
		if scenario == nil {
			return &inim.Error{Kind: inim.KindValidation, Msg: fmt.Sprintf("unknown scenario %d", intent.ScenarioID)}
		}
		if err := d.api.ActivateScenario(ctx, s.DeviceID, intent.ScenarioID); err != nil {
			return err
		}
		armed := map[int]bool{}
		for _, id := range scenario.Areas {
			armed[id] = true
		}
		apply = func(s *State) {
			s.ActiveScenario = intent.ScenarioID
			for i := range s.Areas {
				if armed[s.Areas[i].ID] {
					s.Areas[i].Status = AreaStateArmed
				} else {
					s.Areas[i].Status = AreaStateDisarmed
				}
			}
		}
		d.log.Info("Scenario %d (%s) activated", intent.ScenarioID, scenario.Name)

	default:
		return &inim.Error{Kind: inim.KindValidation, Msg: fmt.Sprintf("unknown intent %d", intent.Kind)}
	}

	d.overlay(apply)
	d.forcePoll()

	return nil
}

func setAreaStatus(ids []int, arm bool) func(*State) {
	status := AreaStateDisarmed
	if arm {
		status = AreaStateArmed
	}
	return func(s *State) {
		for _, id := range ids {
			if a := s.Area(id); a != nil {
				a.Status = status
			}
		}
	}
}

func armWord(arm bool) string {
	if arm {
		return "armed"
	}
	return "disarmed"
}
