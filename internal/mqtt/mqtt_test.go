package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daemonp/inim2mqtt/internal/config"
	"github.com/daemonp/inim2mqtt/internal/log"
	"github.com/daemonp/inim2mqtt/internal/panel"
)

func testBridge(t *testing.T) (*MQTT, *panel.Panel) {
	t.Helper()

	cfg := &config.Config{
		Inim: config.InimConfig{
			Email:        "user@example.com",
			Password:     "secret",
			ScanInterval: 30,
			MaxBackoff:   300,
		},
		MQTT: config.MQTTConfig{Prefix: "inim2mqtt"},
	}
	p := panel.NewPanel(cfg, log.NewLogger("error"))
	return NewMQTT(&cfg.MQTT, p, log.NewLogger("error")), p
}

func testState() *panel.State {
	return &panel.State{
		DeviceID: 77,
		Name:     "Casa",
		Areas: []panel.Area{
			{ID: 1, Name: "Piano Terra"},
		},
		Zones: []panel.Zone{
			{ID: 3, Name: "Cucina Finestra", AreaID: 1, DeviceClass: panel.DeviceClassWindow},
		},
		Scenarios: []panel.Scenario{
			{ID: 0, Name: "TOTALE", Areas: []int{1}},
		},
	}
}

func TestTopicSegment(t *testing.T) {
	t.Parallel()

	require.Equal(t, "piano-terra", topicSegment("inim2mqtt/area/piano-terra/command", "inim2mqtt/area/", "/command"))
	require.Equal(t, "cucina-finestra", topicSegment("inim2mqtt/zone/cucina-finestra/bypass/set", "inim2mqtt/zone/", "/bypass/set"))
	require.Empty(t, topicSegment("other/area/x/command", "inim2mqtt/area/", "/command"))
	require.Empty(t, topicSegment("inim2mqtt/area/x/status", "inim2mqtt/area/", "/command"))
}

func TestCommandSlugResolution(t *testing.T) {
	t.Parallel()

	m, p := testBridge(t)
	p.SetCachedState(testState())

	area := m.areaBySlug("piano-terra")
	require.NotNil(t, area)
	require.Equal(t, 1, area.ID)
	require.Nil(t, m.areaBySlug("sconosciuta"))
	require.Nil(t, m.areaBySlug(""))

	zone := m.zoneBySlug("cucina-finestra")
	require.NotNil(t, zone)
	require.Equal(t, 3, zone.ID)

	scenario := m.scenarioBySlug("totale")
	require.NotNil(t, scenario)
	require.Equal(t, 0, scenario.ID)
}

func TestCommandSlugResolutionSeesLaterEntities(t *testing.T) {
	t.Parallel()

	m, p := testBridge(t)
	p.SetCachedState(testState())
	require.Nil(t, m.areaBySlug("garage"))

	// A later poll adds an area; the wildcard subscription resolves it
	// without any resubscribe.
	next := testState()
	next.Areas = append(next.Areas, panel.Area{ID: 2, Name: "Garage"})
	p.SetCachedState(next)

	area := m.areaBySlug("garage")
	require.NotNil(t, area)
	require.Equal(t, 2, area.ID)
}
