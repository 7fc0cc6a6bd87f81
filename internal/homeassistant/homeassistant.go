// Package homeassistant publishes MQTT discovery configs so the panel's
// entities appear in Home Assistant without manual configuration.
package homeassistant

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/daemonp/inim2mqtt/internal/config"
	"github.com/daemonp/inim2mqtt/internal/log"
	"github.com/daemonp/inim2mqtt/internal/mqtt"
	"github.com/daemonp/inim2mqtt/internal/panel"
	"github.com/daemonp/inim2mqtt/internal/util"
)

// placeholderArea matches factory-default area names the panel reports for
// unconfigured areas. Those get no dedicated alarm entity.
var placeholderArea = regexp.MustCompile(`(?i)^area \d+$`)

type HomeAssistant struct {
	config *config.HomeAssistantConfig
	mqtt   mqtt.MQTTClient
	panel  *panel.Panel
	log    *log.Logger
}

func New(cfg *config.HomeAssistantConfig, mqttClient mqtt.MQTTClient, p *panel.Panel, logger *log.Logger) *HomeAssistant {
	return &HomeAssistant{
		config: cfg,
		mqtt:   mqttClient,
		panel:  p,
		log:    logger,
	}
}

func (ha *HomeAssistant) Start() {
	ha.log.Info("Starting Home Assistant integration")
	ha.publishDiscoveryConfig()
	ha.panel.OnChange(ha.onChange)
}

// onChange publishes discovery configs for areas and zones that appear in a
// later poll, so they become entities without waiting for a reconnect.
func (ha *HomeAssistant) onChange(changes []panel.StateChange) {
	for _, c := range changes {
		if c.Change != panel.ChangeAdded {
			continue
		}
		switch c.Entity {
		case panel.EntityArea:
			if !placeholderArea.MatchString(c.Area.Name) {
				ha.publishAreaConfig(*c.Area)
			}
		case panel.EntityZone:
			ha.publishZoneConfig(*c.Zone)
			ha.publishBypassConfig(*c.Zone)
		}
	}
}

func (ha *HomeAssistant) publishDiscoveryConfig() {
	state := ha.panel.State()
	if state == nil {
		ha.log.Warning("No panel snapshot yet, skipping discovery")
		return
	}

	ha.publishPanelConfig(state)

	for _, area := range state.Areas {
		if placeholderArea.MatchString(area.Name) {
			continue
		}
		ha.publishAreaConfig(area)
	}

	for _, zone := range state.Zones {
		ha.publishZoneConfig(zone)
		ha.publishBypassConfig(zone)
	}

	for _, scenario := range state.Scenarios {
		ha.publishScenarioConfig(scenario)
	}

	ha.publishVoltageConfig(state)

	if state.Gsm != nil {
		ha.publishGsmConfig(state)
	}
}

// deviceInfo groups every entity under one Home Assistant device.
func (ha *HomeAssistant) deviceInfo(state *panel.State) map[string]interface{} {
	return map[string]interface{}{
		"identifiers":  []string{state.SerialNumber},
		"manufacturer": "Inim",
		"model":        state.Model,
		"name":         state.Name,
		"sw_version":   state.Firmware,
	}
}

func (ha *HomeAssistant) publishPanelConfig(state *panel.State) {
	config := map[string]interface{}{
		"name":                 state.Name,
		"unique_id":            fmt.Sprintf("%s_panel", ha.mqtt.GetPrefix()),
		"state_topic":          ha.mqtt.Topics().PanelState(),
		"command_topic":        ha.mqtt.Topics().PanelCommand(),
		"payload_disarm":       "disarm",
		"payload_arm_away":     "arm_away",
		"payload_arm_home":     "arm_home",
		"value_template":       "{{ value_json.status }}",
		"availability_topic":   ha.mqtt.Topics().Status(),
		"code_arm_required":    false,
		"code_disarm_required": false,
		"device":               ha.deviceInfo(state),
	}

	// Without a mapped partial scenario arm_home would silently fail.
	if roles, ok := ha.panel.Roles(); !ok || roles.ArmHome == panel.RoleUnset {
		config["supported_features"] = []string{"arm_away"}
	}

	ha.publishConfig("alarm_control_panel", "panel", config)
}

func (ha *HomeAssistant) publishAreaConfig(area panel.Area) {
	state := ha.panel.State()
	config := map[string]interface{}{
		"name":                 area.Name,
		"unique_id":            fmt.Sprintf("%s_area_%s", ha.mqtt.GetPrefix(), util.Slugify(area.Name)),
		"state_topic":          ha.mqtt.Topics().Area(area),
		"command_topic":        ha.mqtt.Topics().AreaCommand(area),
		"payload_disarm":       "disarm",
		"payload_arm_away":     "arm",
		"value_template":       "{{ value_json.status }}",
		"availability_topic":   ha.mqtt.Topics().Status(),
		"code_arm_required":    false,
		"code_disarm_required": false,
		"device":               ha.deviceInfo(state),
	}

	ha.publishConfig("alarm_control_panel", fmt.Sprintf("area_%d", area.ID), config)
}

func (ha *HomeAssistant) publishZoneConfig(zone panel.Zone) {
	state := ha.panel.State()
	config := map[string]interface{}{
		"name":               zone.Name,
		"unique_id":          fmt.Sprintf("%s_zone_%s", ha.mqtt.GetPrefix(), util.Slugify(zone.Name)),
		"state_topic":        ha.mqtt.Topics().Zone(zone),
		"device_class":       string(zone.DeviceClass),
		"value_template":     "{{ 'ON' if value_json.open else 'OFF' }}",
		"availability_topic": ha.mqtt.Topics().Status(),
		"device":             ha.deviceInfo(state),
	}

	ha.publishConfig("binary_sensor", fmt.Sprintf("zone_%d", zone.ID), config)
}

func (ha *HomeAssistant) publishBypassConfig(zone panel.Zone) {
	state := ha.panel.State()
	config := map[string]interface{}{
		"name":               fmt.Sprintf("%s Bypass", zone.Name),
		"unique_id":          fmt.Sprintf("%s_zone_%s_bypass", ha.mqtt.GetPrefix(), util.Slugify(zone.Name)),
		"state_topic":        ha.mqtt.Topics().Zone(zone),
		"command_topic":      ha.mqtt.Topics().ZoneBypassSet(zone),
		"value_template":     "{{ 'ON' if value_json.bypassed else 'OFF' }}",
		"payload_on":         "ON",
		"payload_off":        "OFF",
		"availability_topic": ha.mqtt.Topics().Status(),
		"entity_category":    "config",
		"device":             ha.deviceInfo(state),
	}

	ha.publishConfig("switch", fmt.Sprintf("zone_%d_bypass", zone.ID), config)
}

func (ha *HomeAssistant) publishScenarioConfig(scenario panel.Scenario) {
	state := ha.panel.State()
	config := map[string]interface{}{
		"name":               scenario.Name,
		"unique_id":          fmt.Sprintf("%s_scenario_%s", ha.mqtt.GetPrefix(), util.Slugify(scenario.Name)),
		"command_topic":      ha.mqtt.Topics().ScenarioActivate(scenario),
		"payload_press":      "activate",
		"availability_topic": ha.mqtt.Topics().Status(),
		"device":             ha.deviceInfo(state),
	}

	ha.publishConfig("button", fmt.Sprintf("scenario_%d", scenario.ID), config)
}

func (ha *HomeAssistant) publishVoltageConfig(state *panel.State) {
	config := map[string]interface{}{
		"name":                fmt.Sprintf("%s Voltage", state.Name),
		"unique_id":           fmt.Sprintf("%s_voltage", ha.mqtt.GetPrefix()),
		"state_topic":         ha.mqtt.Topics().Voltage(),
		"device_class":        "voltage",
		"unit_of_measurement": "V",
		"state_class":         "measurement",
		"availability_topic":  ha.mqtt.Topics().Status(),
		"entity_category":     "diagnostic",
		"device":              ha.deviceInfo(state),
	}

	ha.publishConfig("sensor", "voltage", config)
}

func (ha *HomeAssistant) publishGsmConfig(state *panel.State) {
	config := map[string]interface{}{
		"name":               fmt.Sprintf("%s GSM Signal", state.Name),
		"unique_id":          fmt.Sprintf("%s_gsm_signal", ha.mqtt.GetPrefix()),
		"state_topic":        ha.mqtt.Topics().Gsm(),
		"value_template":     "{{ value_json.signal_strength }}",
		"icon":               "mdi:signal",
		"state_class":        "measurement",
		"availability_topic": ha.mqtt.Topics().Status(),
		"entity_category":    "diagnostic",
		"device":             ha.deviceInfo(state),
	}

	ha.publishConfig("sensor", "gsm_signal", config)
}

func (ha *HomeAssistant) publishConfig(component, objectID string, config map[string]interface{}) {
	topic := fmt.Sprintf("%s/%s/%s/%s/config", ha.config.Prefix, component, ha.mqtt.GetPrefix(), objectID)

	payload, err := json.Marshal(config)
	if err != nil {
		ha.log.Error("Failed to marshal Home Assistant config: %v", err)
		return
	}

	ha.mqtt.Publish(topic, string(payload), true)
}
