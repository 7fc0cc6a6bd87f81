package panel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daemonp/inim2mqtt/internal/inim"
)

// fakeAPI records cloud calls and can fail on demand.
type fakeAPI struct {
	calls   []string
	failAll error
}

func (f *fakeAPI) SetAreas(ctx context.Context, deviceID int, areaIDs []int, arm bool, userCode string) error {
	if f.failAll != nil {
		return f.failAll
	}
	f.calls = append(f.calls, "set_areas")
	return nil
}

func (f *fakeAPI) SetZoneBypass(ctx context.Context, deviceID, zoneID int, bypass bool, userCode string) error {
	if f.failAll != nil {
		return f.failAll
	}
	f.calls = append(f.calls, "set_zone_bypass")
	return nil
}

func (f *fakeAPI) ActivateScenario(ctx context.Context, deviceID, scenarioID int) error {
	if f.failAll != nil {
		return f.failAll
	}
	f.calls = append(f.calls, "activate_scenario")
	return nil
}

// dispatchHarness mimics the Panel's state/overlay/forcePoll wiring.
type dispatchHarness struct {
	rec    *Reconciler
	state  *State
	events [][]StateChange
	forced int
}

func newDispatchHarness() *dispatchHarness {
	rec := NewReconciler()
	return &dispatchHarness{rec: rec, state: rec.FromDevice(testDevice())}
}

func (h *dispatchHarness) getState() *State { return h.state }

func (h *dispatchHarness) overlay(mutate func(*State)) {
	next := h.state.clone()
	mutate(next)
	changes := h.rec.Reconcile(h.state, next)
	h.state = next
	if len(changes) > 0 {
		h.events = append(h.events, changes)
	}
}

func (h *dispatchHarness) forcePoll() { h.forced++ }

func (h *dispatchHarness) dispatcher(api cloudAPI, userCode string) *Dispatcher {
	return NewDispatcher(testLogger(), api, userCode, h.getState, h.overlay, h.forcePoll)
}

func TestDispatchArmAreaAppliesOptimisticOverlay(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	api := &fakeAPI{}
	d := h.dispatcher(api, "1234")

	require.Equal(t, AreaStateDisarmed, h.state.Area(1).Status)

	require.NoError(t, d.Dispatch(context.Background(), Intent{Kind: IntentArmArea, AreaID: 1}))

	// The state reads armed immediately, before any poll.
	require.Equal(t, AreaStateArmed, h.state.Area(1).Status)
	require.Equal(t, 1, h.forced)
	require.Len(t, h.events, 1)
}

func TestDispatchAuthoritativePollOverridesOverlay(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	d := h.dispatcher(&fakeAPI{}, "1234")

	require.NoError(t, d.Dispatch(context.Background(), Intent{Kind: IntentArmArea, AreaID: 1}))
	require.Equal(t, AreaStateArmed, h.state.Area(1).Status)

	// The forced poll reports the panel rejected the command: the area is
	// still disarmed. The authoritative value wins and a change is emitted.
	authoritative := h.rec.FromDevice(testDevice())
	changes := h.rec.Reconcile(h.state, authoritative)
	h.state = authoritative

	require.Equal(t, AreaStateDisarmed, h.state.Area(1).Status)

	var areaChange *StateChange
	for i := range changes {
		if changes[i].Entity == EntityArea && changes[i].ID == 1 {
			areaChange = &changes[i]
		}
	}
	require.NotNil(t, areaChange)
	require.Equal(t, AreaStateDisarmed, areaChange.Area.Status)
}

func TestDispatchConfirmingPollIsSilent(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	d := h.dispatcher(&fakeAPI{}, "1234")

	require.NoError(t, d.Dispatch(context.Background(), Intent{Kind: IntentArmArea, AreaID: 1}))

	// The forced poll confirms the overlay: no duplicate event.
	dev := testDevice()
	dev.Areas[0].Armed = 1
	confirming := h.rec.FromDevice(dev)

	require.Empty(t, h.rec.Reconcile(h.state, confirming))
}

func TestDispatchBypassWithoutUserCodeIsPrecondition(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	api := &fakeAPI{}
	d := h.dispatcher(api, "")

	err := d.Dispatch(context.Background(), Intent{Kind: IntentBypassZone, ZoneID: 3, Bypass: true})
	require.Error(t, err)
	require.Equal(t, inim.KindPrecondition, inim.Classify(err))

	// No network call, no overlay, no forced poll.
	require.Empty(t, api.calls)
	require.Empty(t, h.events)
	require.Zero(t, h.forced)
	require.False(t, h.state.Zone(3).Bypassed)
}

func TestDispatchUnknownTargetIsValidationError(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	api := &fakeAPI{}
	d := h.dispatcher(api, "1234")

	err := d.Dispatch(context.Background(), Intent{Kind: IntentArmArea, AreaID: 42})
	require.Error(t, err)
	require.Equal(t, inim.KindValidation, inim.Classify(err))
	require.Empty(t, api.calls)

	err = d.Dispatch(context.Background(), Intent{Kind: IntentActivateScenario, ScenarioID: 42})
	require.Error(t, err)
	require.Equal(t, inim.KindValidation, inim.Classify(err))
}

func TestDispatchFailureAppliesNoOptimisticState(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	api := &fakeAPI{failAll: &inim.Error{Kind: inim.KindServer, Msg: "boom"}}
	d := h.dispatcher(api, "1234")

	err := d.Dispatch(context.Background(), Intent{Kind: IntentArmArea, AreaID: 1})
	require.Error(t, err)
	require.Equal(t, inim.KindServer, inim.Classify(err))

	require.Equal(t, AreaStateDisarmed, h.state.Area(1).Status)
	require.Empty(t, h.events)
	require.Zero(t, h.forced)
}

func TestDispatchScenarioOverlayArmsItsAreas(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	d := h.dispatcher(&fakeAPI{}, "1234")

	// Scenario 0 (TOTALE) arms areas 1 and 2.
	require.NoError(t, d.Dispatch(context.Background(), Intent{Kind: IntentActivateScenario, ScenarioID: 0}))

	require.Equal(t, AreaStateArmed, h.state.Area(1).Status)
	require.Equal(t, AreaStateArmed, h.state.Area(2).Status)
	require.Equal(t, 0, h.state.ActiveScenario)
	require.Equal(t, 1, h.forced)
}

func TestDispatchBypassZone(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	api := &fakeAPI{}
	d := h.dispatcher(api, "1234")

	require.NoError(t, d.Dispatch(context.Background(), Intent{Kind: IntentBypassZone, ZoneID: 3, Bypass: true}))
	require.True(t, h.state.Zone(3).Bypassed)
	require.Equal(t, []string{"set_zone_bypass"}, api.calls)
}

func TestDispatchArmAllOverlaysEveryArea(t *testing.T) {
	t.Parallel()

	h := newDispatchHarness()
	d := h.dispatcher(&fakeAPI{}, "1234")

	require.NoError(t, d.Dispatch(context.Background(), Intent{Kind: IntentArmAll}))
	for _, a := range h.state.Areas {
		require.Equal(t, AreaStateArmed, a.Status)
	}
}
