package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daemonp/inim2mqtt/internal/panel"
)

func TestTopicsSlugifyEntityNames(t *testing.T) {
	t.Parallel()

	topics := NewTopics("inim2mqtt")

	require.Equal(t, "inim2mqtt/status", topics.Status())
	require.Equal(t, "inim2mqtt/panel", topics.PanelState())
	require.Equal(t, "inim2mqtt/panel/command", topics.PanelCommand())

	area := panel.Area{ID: 1, Name: "Piano Terra"}
	require.Equal(t, "inim2mqtt/area/piano-terra", topics.Area(area))
	require.Equal(t, "inim2mqtt/area/piano-terra/command", topics.AreaCommand(area))

	zone := panel.Zone{ID: 3, Name: "Cucina Finestra"}
	require.Equal(t, "inim2mqtt/zone/cucina-finestra", topics.Zone(zone))
	require.Equal(t, "inim2mqtt/zone/cucina-finestra/bypass/set", topics.ZoneBypassSet(zone))

	scenario := panel.Scenario{ID: 0, Name: "TOTALE"}
	require.Equal(t, "inim2mqtt/scenario/totale", topics.Scenario(scenario))
	require.Equal(t, "inim2mqtt/scenario/totale/activate", topics.ScenarioActivate(scenario))
}

func TestTopicsWildcardFilters(t *testing.T) {
	t.Parallel()

	topics := NewTopics("inim2mqtt")

	require.Equal(t, "inim2mqtt/area/+/command", topics.AreaCommands())
	require.Equal(t, "inim2mqtt/zone/+/bypass/set", topics.ZoneBypassSets())
	require.Equal(t, "inim2mqtt/scenario/+/activate", topics.ScenarioActivations())
}

func TestTopicsFoldAccents(t *testing.T) {
	t.Parallel()

	topics := NewTopics("inim2mqtt")

	area := panel.Area{ID: 2, Name: "Però Giù"}
	require.Equal(t, "inim2mqtt/area/pero-giu", topics.Area(area))
}
