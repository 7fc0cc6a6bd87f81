package homeassistant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daemonp/inim2mqtt/internal/config"
	"github.com/daemonp/inim2mqtt/internal/log"
	"github.com/daemonp/inim2mqtt/internal/mqtt"
	"github.com/daemonp/inim2mqtt/internal/panel"
)

type fakePublisher struct {
	topics   *mqtt.Topics
	payloads map[string]string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		topics:   mqtt.NewTopics("inim2mqtt"),
		payloads: map[string]string{},
	}
}

func (f *fakePublisher) GetPrefix() string    { return "inim2mqtt" }
func (f *fakePublisher) Topics() *mqtt.Topics { return f.topics }

func (f *fakePublisher) Publish(topic string, payload interface{}, retain bool) {
	f.payloads[topic] = payload.(string)
}

func testState() *panel.State {
	return &panel.State{
		DeviceID:     77,
		Name:         "Casa",
		SerialNumber: "SN-1",
		Model:        "Prime 60",
		Firmware:     "1.2",
		Areas: []panel.Area{
			{ID: 1, Name: "Piano Terra"},
			{ID: 2, Name: "Area 2"}, // factory placeholder, no alarm entity
		},
		Zones: []panel.Zone{
			{ID: 3, Name: "Cucina Finestra", AreaID: 1, DeviceClass: panel.DeviceClassWindow},
		},
		Scenarios: []panel.Scenario{
			{ID: 0, Name: "TOTALE", Areas: []int{1, 2}},
		},
		Gsm: &panel.Gsm{Operator: "Vodafone", SignalStrength: 4},
	}
}

func testPanel(t *testing.T) *panel.Panel {
	t.Helper()

	cfg := &config.Config{
		Inim: config.InimConfig{
			Email:        "user@example.com",
			Password:     "secret",
			ScanInterval: 30,
			MaxBackoff:   300,
		},
	}
	p := panel.NewPanel(cfg, log.NewLogger("error"))
	p.SetCachedState(testState())
	return p
}

func TestDiscoveryPublishesExpectedConfigs(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	ha := New(&config.HomeAssistantConfig{Discovery: true, Prefix: "homeassistant"}, pub, testPanel(t), log.NewLogger("error"))
	ha.Start()

	require.Contains(t, pub.payloads, "homeassistant/alarm_control_panel/inim2mqtt/panel/config")
	require.Contains(t, pub.payloads, "homeassistant/alarm_control_panel/inim2mqtt/area_1/config")
	require.NotContains(t, pub.payloads, "homeassistant/alarm_control_panel/inim2mqtt/area_2/config")
	require.Contains(t, pub.payloads, "homeassistant/binary_sensor/inim2mqtt/zone_3/config")
	require.Contains(t, pub.payloads, "homeassistant/switch/inim2mqtt/zone_3_bypass/config")
	require.Contains(t, pub.payloads, "homeassistant/button/inim2mqtt/scenario_0/config")
	require.Contains(t, pub.payloads, "homeassistant/sensor/inim2mqtt/voltage/config")
	require.Contains(t, pub.payloads, "homeassistant/sensor/inim2mqtt/gsm_signal/config")
}

func TestDiscoveryZoneConfigCarriesDeviceClass(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	ha := New(&config.HomeAssistantConfig{Discovery: true, Prefix: "homeassistant"}, pub, testPanel(t), log.NewLogger("error"))
	ha.Start()

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(pub.payloads["homeassistant/binary_sensor/inim2mqtt/zone_3/config"]), &cfg))

	require.Equal(t, "window", cfg["device_class"])
	require.Equal(t, "inim2mqtt/zone/cucina-finestra", cfg["state_topic"])
	require.Equal(t, "inim2mqtt/status", cfg["availability_topic"])

	device, ok := cfg["device"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Prime 60", device["model"])
}

func TestDiscoveryCoversEntitiesAddedByLaterPolls(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	p := testPanel(t)
	ha := New(&config.HomeAssistantConfig{Discovery: true, Prefix: "homeassistant"}, pub, p, log.NewLogger("error"))
	ha.Start()

	require.NotContains(t, pub.payloads, "homeassistant/binary_sensor/inim2mqtt/zone_9/config")

	// The next poll reports a new zone and a newly named area.
	next := testState()
	next.Zones = append(next.Zones, panel.Zone{ID: 9, Name: "Garage Porta", AreaID: 2, DeviceClass: panel.DeviceClassDoor})
	next.Areas = append(next.Areas, panel.Area{ID: 3, Name: "Mansarda"})
	p.SetCachedState(next)

	require.Contains(t, pub.payloads, "homeassistant/binary_sensor/inim2mqtt/zone_9/config")
	require.Contains(t, pub.payloads, "homeassistant/switch/inim2mqtt/zone_9_bypass/config")
	require.Contains(t, pub.payloads, "homeassistant/alarm_control_panel/inim2mqtt/area_3/config")
}

func TestDiscoveryPanelWithoutPartialScenarioLimitsFeatures(t *testing.T) {
	t.Parallel()

	pub := newFakePublisher()
	ha := New(&config.HomeAssistantConfig{Discovery: true, Prefix: "homeassistant"}, pub, testPanel(t), log.NewLogger("error"))
	ha.Start()

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(pub.payloads["homeassistant/alarm_control_panel/inim2mqtt/panel/config"]), &cfg))

	require.Equal(t, []interface{}{"arm_away"}, cfg["supported_features"])
}
