package panel

import (
	"errors"
	"strings"
)

// Roles maps alarm-panel semantics onto panel scenarios. RoleUnset marks a
// role that could not be mapped.
type Roles struct {
	ArmAway int
	ArmHome int
	Disarm  int
}

const RoleUnset = -1

// ErrScenarioUnmapped is returned when auto-detection cannot settle on an
// unambiguous role assignment. The explicit config mapping is the way out.
var ErrScenarioUnmapped = errors.New("scenario roles could not be detected; configure inim.scenarios explicitly")

// Keywords the panels use for the stock full-arm and disarm scenarios.
var (
	disarmNames  = []string{"spento", "off", "disinserito"}
	armAwayNames = []string{"totale", "total", "inserito"}
)

// roleDetector proposes a scenario id for one role, or RoleUnset. Detectors
// run top to bottom; the first non-unset answer wins. A detector may also
// report ambiguity, which terminates the chain with an explicit unmapped
// state instead of a guess.
type roleDetector func(scenarios []Scenario, taken map[int]bool) (id int, ambiguous bool)

func nameDetector(keywords []string) roleDetector {
	return func(scenarios []Scenario, taken map[int]bool) (int, bool) {
		for _, s := range scenarios {
			if taken[s.ID] {
				continue
			}
			name := strings.ToLower(s.Name)
			for _, kw := range keywords {
				if name == kw {
					return s.ID, false
				}
			}
		}
		return RoleUnset, false
	}
}

// fewestAreasDetector picks the scenario arming the fewest areas, typically
// the disarm preset (zero areas). A tie is ambiguous.
func fewestAreasDetector(scenarios []Scenario, taken map[int]bool) (int, bool) {
	best, count, ties := RoleUnset, 0, 0
	for _, s := range scenarios {
		if taken[s.ID] {
			continue
		}
		switch {
		case best == RoleUnset || len(s.Areas) < count:
			best, count, ties = s.ID, len(s.Areas), 1
		case len(s.Areas) == count:
			ties++
		}
	}
	if ties > 1 {
		return RoleUnset, true
	}
	return best, false
}

// mostAreasDetector picks the scenario arming the most areas, the full-arm
// preset. Ties resolve in snapshot order.
func mostAreasDetector(scenarios []Scenario, taken map[int]bool) (int, bool) {
	best, count := RoleUnset, -1
	for _, s := range scenarios {
		if taken[s.ID] {
			continue
		}
		if len(s.Areas) > count {
			best, count = s.ID, len(s.Areas)
		}
	}
	return best, false
}

// partialDetector picks the first scenario arming a strict non-empty subset
// of the panel's areas.
func partialDetector(scenarios []Scenario, taken map[int]bool) (int, bool) {
	full := map[int]bool{}
	for _, s := range scenarios {
		for _, a := range s.Areas {
			full[a] = true
		}
	}
	for _, s := range scenarios {
		if taken[s.ID] {
			continue
		}
		if len(s.Areas) > 0 && len(s.Areas) < len(full) {
			return s.ID, false
		}
	}
	return RoleUnset, false
}

func detectRole(detectors []roleDetector, scenarios []Scenario, taken map[int]bool) int {
	for _, d := range detectors {
		id, ambiguous := d(scenarios, taken)
		if ambiguous {
			return RoleUnset
		}
		if id != RoleUnset {
			taken[id] = true
			return id
		}
	}
	return RoleUnset
}

// DetectRoles assigns scenario roles from the scenario list. It runs once
// after the first successful snapshot and the result is cached for the life
// of the session; re-running later would let a transiently reshaped scenario
// list flap the roles.
func DetectRoles(scenarios []Scenario) (Roles, error) {
	roles := Roles{ArmAway: RoleUnset, ArmHome: RoleUnset, Disarm: RoleUnset}
	if len(scenarios) == 0 {
		return roles, ErrScenarioUnmapped
	}

	taken := map[int]bool{}

	roles.Disarm = detectRole([]roleDetector{
		nameDetector(disarmNames),
		fewestAreasDetector,
	}, scenarios, taken)

	roles.ArmAway = detectRole([]roleDetector{
		nameDetector(armAwayNames),
		mostAreasDetector,
	}, scenarios, taken)

	roles.ArmHome = detectRole([]roleDetector{
		partialDetector,
	}, scenarios, taken)

	if roles.Disarm == RoleUnset || roles.ArmAway == RoleUnset {
		return roles, ErrScenarioUnmapped
	}

	return roles, nil
}
