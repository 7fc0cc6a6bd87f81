package mqtt

import (
	"fmt"

	"github.com/daemonp/inim2mqtt/internal/panel"
	"github.com/daemonp/inim2mqtt/internal/util"
)

type Topics struct {
	prefix string
}

func NewTopics(prefix string) *Topics {
	return &Topics{prefix: prefix}
}

func (t *Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix)
}

func (t *Topics) Config() string {
	return fmt.Sprintf("%s/config", t.prefix)
}

// PanelState is the main alarm panel entity topic.
func (t *Topics) PanelState() string {
	return fmt.Sprintf("%s/panel", t.prefix)
}

func (t *Topics) PanelCommand() string {
	return fmt.Sprintf("%s/panel/command", t.prefix)
}

func (t *Topics) Area(area panel.Area) string {
	return fmt.Sprintf("%s/area/%s", t.prefix, util.Slugify(area.Name))
}

func (t *Topics) AreaCommand(area panel.Area) string {
	return fmt.Sprintf("%s/area/%s/command", t.prefix, util.Slugify(area.Name))
}

// AreaCommands matches the command topic of every area, present or future.
func (t *Topics) AreaCommands() string {
	return fmt.Sprintf("%s/area/+/command", t.prefix)
}

func (t *Topics) Zone(zone panel.Zone) string {
	return fmt.Sprintf("%s/zone/%s", t.prefix, util.Slugify(zone.Name))
}

func (t *Topics) ZoneBypassSet(zone panel.Zone) string {
	return fmt.Sprintf("%s/zone/%s/bypass/set", t.prefix, util.Slugify(zone.Name))
}

// ZoneBypassSets matches every zone's bypass command topic.
func (t *Topics) ZoneBypassSets() string {
	return fmt.Sprintf("%s/zone/+/bypass/set", t.prefix)
}

func (t *Topics) Scenario(s panel.Scenario) string {
	return fmt.Sprintf("%s/scenario/%s", t.prefix, util.Slugify(s.Name))
}

func (t *Topics) ScenarioActivate(s panel.Scenario) string {
	return fmt.Sprintf("%s/scenario/%s/activate", t.prefix, util.Slugify(s.Name))
}

// ScenarioActivations matches every scenario's activation topic.
func (t *Topics) ScenarioActivations() string {
	return fmt.Sprintf("%s/scenario/+/activate", t.prefix)
}

func (t *Topics) Peripheral(p panel.Peripheral) string {
	return fmt.Sprintf("%s/peripheral/%s", t.prefix, util.Slugify(p.Name))
}

func (t *Topics) Gsm() string {
	return fmt.Sprintf("%s/gsm", t.prefix)
}

func (t *Topics) Voltage() string {
	return fmt.Sprintf("%s/voltage", t.prefix)
}
