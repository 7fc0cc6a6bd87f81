// Package mqtt is the host boundary: it publishes reconciled entity state to
// the broker and turns command topics into panel dispatches.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/daemonp/inim2mqtt/internal/config"
	"github.com/daemonp/inim2mqtt/internal/log"
	"github.com/daemonp/inim2mqtt/internal/panel"
	"github.com/daemonp/inim2mqtt/internal/util"
)

const (
	offlinePayload = "offline"
	onlinePayload  = "online"

	commandTimeout = 30 * time.Second
)

type MQTT struct {
	config *config.MQTTConfig
	panel  *panel.Panel
	log    *log.Logger
	client mqtt.Client
	topics *Topics

	// seen remembers the state topic last used for each entity so removals
	// can clear the retained payload even though the entity is gone from the
	// snapshot.
	seenMu sync.Mutex
	seen   map[string]string
}

func NewMQTT(cfg *config.MQTTConfig, p *panel.Panel, logger *log.Logger) *MQTT {
	m := &MQTT{
		config: cfg,
		panel:  p,
		log:    logger,
		topics: NewTopics(cfg.Prefix),
		seen:   make(map[string]string),
	}

	p.OnChange(m.publishChanges)
	p.OnAvailability(m.publishAvailability)
	p.OnAuthFailure(func(err error) {
		m.log.Error("Re-authentication required, marking panel offline: %v", err)
		m.publishAvailability(false)
	})

	return m
}

func (m *MQTT) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", m.config.Host, m.config.Port))
	opts.SetClientID(m.config.ClientID)
	opts.SetUsername(m.config.Username)
	opts.SetPassword(m.config.Password)
	opts.SetCleanSession(m.config.Clean)
	opts.SetKeepAlive(time.Duration(m.config.Keepalive) * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onDisconnect)

	opts.SetWill(m.topics.Status(), offlinePayload, byte(m.config.QOS), m.config.Retain)

	m.client = mqtt.NewClient(opts)

	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}

	m.log.Info("Connected to MQTT broker: %s:%d", m.config.Host, m.config.Port)
	return nil
}

func (m *MQTT) onConnect(client mqtt.Client) {
	m.log.Info("MQTT connection established")
	m.publishAvailability(true)
	m.subscribeTopics()
	m.publishFullState()
}

func (m *MQTT) onDisconnect(client mqtt.Client, err error) {
	m.log.Error("MQTT connection lost: %v", err)
}

// subscribeTopics uses wildcard filters so entities appearing in a later poll
// are commandable without a reconnect; the slug resolves against the current
// snapshot when the message arrives.
func (m *MQTT) subscribeTopics() {
	subscribe := func(topic string, handler mqtt.MessageHandler) {
		token := m.client.Subscribe(topic, byte(m.config.QOS), handler)
		if token.Wait() && token.Error() != nil {
			m.log.Error("Failed to subscribe to topic %s: %v", topic, token.Error())
		} else {
			m.log.Debug("Subscribed to topic: %s", topic)
		}
	}

	subscribe(m.topics.PanelCommand(), m.handlePanelCommand)
	subscribe(m.topics.AreaCommands(), m.handleAreaCommand)
	subscribe(m.topics.ZoneBypassSets(), m.handleBypassCommand)
	subscribe(m.topics.ScenarioActivations(), m.handleScenarioCommand)
}

// topicSegment extracts the entity slug between prefix and suffix, or "".
func topicSegment(topic, prefix, suffix string) string {
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(topic, prefix), suffix)
}

func (m *MQTT) areaBySlug(slug string) *panel.Area {
	state := m.panel.State()
	if state == nil || slug == "" {
		return nil
	}
	for i := range state.Areas {
		if util.Slugify(state.Areas[i].Name) == slug {
			return &state.Areas[i]
		}
	}
	return nil
}

func (m *MQTT) zoneBySlug(slug string) *panel.Zone {
	state := m.panel.State()
	if state == nil || slug == "" {
		return nil
	}
	for i := range state.Zones {
		if util.Slugify(state.Zones[i].Name) == slug {
			return &state.Zones[i]
		}
	}
	return nil
}

func (m *MQTT) scenarioBySlug(slug string) *panel.Scenario {
	state := m.panel.State()
	if state == nil || slug == "" {
		return nil
	}
	for i := range state.Scenarios {
		if util.Slugify(state.Scenarios[i].Name) == slug {
			return &state.Scenarios[i]
		}
	}
	return nil
}

func (m *MQTT) handlePanelCommand(client mqtt.Client, msg mqtt.Message) {
	command := string(msg.Payload())
	m.log.Debug("Panel command: %s", command)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch command {
	case "arm_away":
		err = m.panel.ArmAway(ctx)
	case "arm_home":
		err = m.panel.ArmHome(ctx)
	case "disarm":
		err = m.panel.Disarm(ctx)
	default:
		m.log.Warning("Unknown panel command: %s", command)
		return
	}
	if err != nil {
		m.log.Error("Panel command %s failed: %v", command, err)
	}
}

func (m *MQTT) handleAreaCommand(client mqtt.Client, msg mqtt.Message) {
	area := m.areaBySlug(topicSegment(msg.Topic(), m.config.Prefix+"/area/", "/command"))
	if area == nil {
		m.log.Warning("Command for unknown area topic: %s", msg.Topic())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	command := string(msg.Payload())
	var err error
	switch command {
	case "arm":
		err = m.panel.ArmArea(ctx, area.ID)
	case "disarm":
		err = m.panel.DisarmArea(ctx, area.ID)
	default:
		m.log.Warning("Unknown area command: %s", command)
		return
	}
	if err != nil {
		m.log.Error("Area %s command %s failed: %v", area.Name, command, err)
	}
}

func (m *MQTT) handleBypassCommand(client mqtt.Client, msg mqtt.Message) {
	zone := m.zoneBySlug(topicSegment(msg.Topic(), m.config.Prefix+"/zone/", "/bypass/set"))
	if zone == nil {
		m.log.Warning("Bypass command for unknown zone topic: %s", msg.Topic())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var bypass bool
	switch command := string(msg.Payload()); command {
	case "ON", "on", "true":
		bypass = true
	case "OFF", "off", "false":
		bypass = false
	default:
		m.log.Warning("Unknown bypass command: %s", command)
		return
	}

	if err := m.panel.BypassZone(ctx, zone.ID, bypass); err != nil {
		m.log.Error("Zone %s bypass command failed: %v", zone.Name, err)
	}
}

func (m *MQTT) handleScenarioCommand(client mqtt.Client, msg mqtt.Message) {
	scenario := m.scenarioBySlug(topicSegment(msg.Topic(), m.config.Prefix+"/scenario/", "/activate"))
	if scenario == nil {
		m.log.Warning("Activation for unknown scenario topic: %s", msg.Topic())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := m.panel.ActivateScenario(ctx, scenario.ID); err != nil {
		m.log.Error("Scenario %s activation failed: %v", scenario.Name, err)
	}
}

func (m *MQTT) publishAvailability(online bool) {
	if m.client == nil || !m.client.IsConnected() {
		return
	}
	payload := offlinePayload
	if online {
		payload = onlinePayload
	}
	m.Publish(m.topics.Status(), payload, true)
}

// publishFullState pushes every entity's current state, used after (re)connect
// so retained topics match the model.
func (m *MQTT) publishFullState() {
	state := m.panel.State()
	if state == nil {
		return
	}

	m.publishPanelState(state)

	for _, area := range state.Areas {
		m.publishArea(area)
	}
	for _, zone := range state.Zones {
		m.publishZone(zone)
	}
	for _, peripheral := range state.Peripherals {
		m.publishPeripheral(peripheral)
	}
	if state.Gsm != nil {
		m.publishGsm(*state.Gsm)
	}
	m.publishCentral(state.Central)
}

// publishChanges is the panel's OnChange subscriber: one batch per poll cycle.
func (m *MQTT) publishChanges(changes []panel.StateChange) {
	if m.client == nil || !m.client.IsConnected() {
		return
	}

	state := m.panel.State()

	for _, change := range changes {
		if change.Change == panel.ChangeRemoved {
			m.clearRemoved(change)
			continue
		}
		switch change.Entity {
		case panel.EntityArea:
			m.publishArea(*change.Area)
		case panel.EntityZone:
			m.publishZone(*change.Zone)
		case panel.EntityPeripheral:
			m.publishPeripheral(*change.Peripheral)
		case panel.EntityGsm:
			if change.Gsm != nil {
				m.publishGsm(*change.Gsm)
			}
		case panel.EntityCentral:
			if change.Central != nil {
				m.publishCentral(*change.Central)
				if state != nil {
					m.publishPanelState(state)
				}
			}
		}
	}
}

func (m *MQTT) publishPanelState(state *panel.State) {
	payload := map[string]interface{}{
		"name":            state.Name,
		"serial_number":   state.SerialNumber,
		"model":           state.Model,
		"firmware":        state.Firmware,
		"active_scenario": state.ActiveScenario,
		"faults":          state.Central.Faults,
		"status":          panelStatus(state),
	}
	m.Publish(m.topics.PanelState(), payload, true)
}

// panelStatus derives the main panel state the way an alarm entity expects it.
func panelStatus(state *panel.State) string {
	for _, a := range state.Areas {
		if a.Alarm {
			return "triggered"
		}
	}

	armed, partial := 0, 0
	for _, a := range state.Areas {
		switch a.Status {
		case panel.AreaStateArmed:
			armed++
		case panel.AreaStateArmedPartial:
			partial++
		}
	}
	switch {
	case armed == len(state.Areas) && armed > 0:
		return "armed_away"
	case armed > 0 || partial > 0:
		return "armed_home"
	default:
		return "disarmed"
	}
}

func (m *MQTT) rememberTopic(entity panel.EntityKind, id int, topic string) string {
	m.seenMu.Lock()
	m.seen[fmt.Sprintf("%s/%d", entity, id)] = topic
	m.seenMu.Unlock()
	return topic
}

// clearRemoved publishes an empty retained payload on the entity's last known
// topic so the broker forgets it.
func (m *MQTT) clearRemoved(change panel.StateChange) {
	if change.Entity == panel.EntityGsm {
		m.Publish(m.topics.Gsm(), "", true)
		return
	}

	m.seenMu.Lock()
	topic, ok := m.seen[fmt.Sprintf("%s/%d", change.Entity, change.ID)]
	m.seenMu.Unlock()
	if ok {
		m.Publish(topic, "", true)
	}
}

func (m *MQTT) publishArea(area panel.Area) {
	payload := map[string]interface{}{
		"id":            area.ID,
		"name":          area.Name,
		"status":        area.Status.String(),
		"alarm":         area.Alarm,
		"alarm_memory":  area.AlarmMemory,
		"tamper":        area.Tamper,
		"tamper_memory": area.TamperMemory,
	}
	m.Publish(m.rememberTopic(panel.EntityArea, area.ID, m.topics.Area(area)), payload, true)
}

func (m *MQTT) publishZone(zone panel.Zone) {
	payload := map[string]interface{}{
		"id":            zone.ID,
		"name":          zone.Name,
		"area_id":       zone.AreaID,
		"open":          zone.Open,
		"device_class":  string(zone.DeviceClass),
		"bypassed":      zone.Bypassed,
		"alarm_memory":  zone.AlarmMemory,
		"tamper_memory": zone.TamperMemory,
		"output_on":     zone.OutputOn,
	}
	m.Publish(m.rememberTopic(panel.EntityZone, zone.ID, m.topics.Zone(zone)), payload, true)
}

func (m *MQTT) publishPeripheral(p panel.Peripheral) {
	payload := map[string]interface{}{
		"id":      p.ID,
		"name":    p.Name,
		"kind":    p.Kind,
		"voltage": p.Voltage,
	}
	m.Publish(m.rememberTopic(panel.EntityPeripheral, p.ID, m.topics.Peripheral(p)), payload, true)
}

func (m *MQTT) publishGsm(gsm panel.Gsm) {
	payload := map[string]interface{}{
		"operator":        gsm.Operator,
		"signal_strength": gsm.SignalStrength,
		"imei":            gsm.IMEI,
		"is_4g":           gsm.Is4G,
		"has_gprs":        gsm.HasGPRS,
		"battery_charge":  gsm.BatteryCharge,
	}
	m.Publish(m.topics.Gsm(), payload, true)
}

func (m *MQTT) publishCentral(central panel.Central) {
	m.Publish(m.topics.Voltage(), fmt.Sprintf("%.2f", central.Voltage), true)
}

func (m *MQTT) GetPrefix() string {
	return m.config.Prefix
}

func (m *MQTT) Topics() *Topics {
	return m.topics
}

func (m *MQTT) Publish(topic string, message interface{}, retain bool) {
	var payload []byte
	switch v := message.(type) {
	case string:
		payload = []byte(v)
	default:
		var err error
		payload, err = json.Marshal(message)
		if err != nil {
			m.log.Error("Failed to marshal message for topic %s: %v", topic, err)
			return
		}
	}

	token := m.client.Publish(topic, byte(m.config.QOS), retain, payload)
	if token.Wait() && token.Error() != nil {
		m.log.Error("Failed to publish message to topic %s: %v", topic, token.Error())
	} else {
		m.log.Debug("Published message to topic: %s", topic)
	}
}

func (m *MQTT) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.Publish(m.topics.Status(), offlinePayload, true)
		m.client.Disconnect(250)
	}
}
