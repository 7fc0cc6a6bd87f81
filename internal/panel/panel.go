// Package panel owns the in-memory model of one INIM alarm panel and keeps
// it synchronized with INIM Cloud: the polling loop, the snapshot reconciler
// and the command dispatch path.
package panel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/daemonp/inim2mqtt/internal/config"
	"github.com/daemonp/inim2mqtt/internal/inim"
	"github.com/daemonp/inim2mqtt/internal/log"
)

// Panel ties the cloud client, reconciler, poll coordinator and command
// dispatcher together and fans reconciled state out to subscribers.
type Panel struct {
	config     *config.Config
	log        *log.Logger
	client     *inim.Client
	rec        *Reconciler
	poller     *Poller
	dispatcher *Dispatcher

	mu       sync.RWMutex
	state    *State
	roles    Roles
	rolesSet bool

	// pubMu serializes the reconcile+swap+publish triple across the poll and
	// overlay paths so subscribers receive batches in snapshot order and the
	// published value always matches the committed state at delivery.
	pubMu sync.Mutex

	onChange       []func([]StateChange)
	onAvailability []func(bool)
	onAuthFailure  []func(error)

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPanel(cfg *config.Config, logger *log.Logger) *Panel {
	p := &Panel{
		config: cfg,
		log:    logger,
		client: inim.NewClient(cfg.Inim.Email, cfg.Inim.Password, logger),
		rec:    NewReconciler(),
		done:   make(chan struct{}),
	}

	p.poller = NewPoller(PollerConfig{
		Log:            logger,
		Interval:       time.Duration(cfg.Inim.ScanInterval) * time.Second,
		MaxBackoff:     time.Duration(cfg.Inim.MaxBackoff) * time.Second,
		Fetch:          p.fetchState,
		Commit:         p.syncState,
		OnAvailability: p.notifyAvailability,
		OnAuthFailure:  p.notifyAuthFailure,
	})

	p.dispatcher = NewDispatcher(logger, p.client, cfg.Inim.UserCode, p.State, p.applyOverlay, p.poller.ForcePoll)

	return p
}

// OnChange registers a subscriber for reconciled state deltas. Events are
// delivered in snapshot order, one batch per completed poll cycle.
func (p *Panel) OnChange(fn func([]StateChange)) {
	p.mu.Lock()
	p.onChange = append(p.onChange, fn)
	p.mu.Unlock()
}

// OnAvailability registers a subscriber for availability transitions.
func (p *Panel) OnAvailability(fn func(bool)) {
	p.mu.Lock()
	p.onAvailability = append(p.onAvailability, fn)
	p.mu.Unlock()
}

// OnAuthFailure registers a subscriber for terminal credential failures.
func (p *Panel) OnAuthFailure(fn func(error)) {
	p.mu.Lock()
	p.onAuthFailure = append(p.onAuthFailure, fn)
	p.mu.Unlock()
}

// Start performs the initial login and snapshot fetch, resolves scenario
// roles, then launches the polling loop. It returns an error if the first
// fetch fails; an invalid-credential error here must surface to the boundary
// for re-configuration.
func (p *Panel) Start(ctx context.Context) error {
	p.log.Info("Loading initial snapshot from INIM Cloud...")

	state, err := p.fetchState(ctx)
	if err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}

	p.syncState(state)
	p.notifyAvailability(true)

	p.resolveRoles(state)

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		defer close(p.done)
		p.poller.Run(loopCtx)
	}()

	p.log.Info("Panel %q ready: %d areas, %d zones, %d scenarios",
		state.Name, len(state.Areas), len(state.Zones), len(state.Scenarios))

	return nil
}

// Stop cancels the polling loop and waits for it to observe the cancellation,
// bounded by the given context.
func (p *Panel) Stop(ctx context.Context) {
	if p.cancel == nil {
		return
	}
	p.cancel()
	select {
	case <-p.done:
	case <-ctx.Done():
		p.log.Warning("Polling loop did not stop in time")
	}
}

// resolveRoles applies the explicit scenario mapping, or runs auto-detection
// once against the first snapshot. The result is cached for the session.
func (p *Panel) resolveRoles(state *State) {
	cfg := p.config.Inim.Scenarios
	if cfg.ArmAway != config.ScenarioUnset || cfg.ArmHome != config.ScenarioUnset || cfg.Disarm != config.ScenarioUnset {
		p.setRoles(Roles{ArmAway: cfg.ArmAway, ArmHome: cfg.ArmHome, Disarm: cfg.Disarm})
		p.log.Info("Scenario roles from config: arm_away=%d arm_home=%d disarm=%d", cfg.ArmAway, cfg.ArmHome, cfg.Disarm)
		return
	}

	roles, err := DetectRoles(state.Scenarios)
	if err != nil {
		p.log.Warning("Scenario role detection failed: %v", err)
		return
	}
	p.setRoles(roles)
	p.log.Info("Scenario roles detected: arm_away=%d arm_home=%d disarm=%d", roles.ArmAway, roles.ArmHome, roles.Disarm)
}

func (p *Panel) setRoles(roles Roles) {
	p.mu.Lock()
	p.roles = roles
	p.rolesSet = true
	p.mu.Unlock()
}

// Roles returns the cached scenario role mapping. ok is false until roles are
// resolved (or when detection ended unmapped).
func (p *Panel) Roles() (Roles, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roles, p.rolesSet
}

// State returns the current committed snapshot, including any optimistic
// overlay. The returned value is immutable; do not modify it.
func (p *Panel) State() *State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Panel) fetchState(ctx context.Context) (*State, error) {
	device, err := p.client.FetchSnapshot(ctx, p.config.Inim.DeviceID)
	if err != nil {
		return nil, err
	}
	return p.rec.FromDevice(device), nil
}

// syncState reconciles next against the visible state (overlay included, so a
// confirmation matching the overlay is silent and a contradiction emits the
// authoritative value), swaps it in by reference and publishes the deltas.
func (p *Panel) syncState(next *State) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	changes := p.rec.Reconcile(p.state, next)
	p.state = next
	p.mu.Unlock()

	if len(changes) > 0 {
		p.publish(changes)
	}
}

// applyOverlay clones the visible state, lets mutate flip the optimistic
// fields, commits the clone and publishes the resulting deltas.
func (p *Panel) applyOverlay(mutate func(*State)) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	if p.state == nil {
		p.mu.Unlock()
		return
	}
	next := p.state.clone()
	mutate(next)
	changes := p.rec.Reconcile(p.state, next)
	p.state = next
	p.mu.Unlock()

	if len(changes) > 0 {
		p.publish(changes)
	}
}

func (p *Panel) publish(changes []StateChange) {
	p.mu.RLock()
	subs := make([]func([]StateChange), len(p.onChange))
	copy(subs, p.onChange)
	p.mu.RUnlock()
	for _, fn := range subs {
		fn(changes)
	}
}

func (p *Panel) notifyAvailability(available bool) {
	p.mu.RLock()
	subs := make([]func(bool), len(p.onAvailability))
	copy(subs, p.onAvailability)
	p.mu.RUnlock()
	for _, fn := range subs {
		fn(available)
	}
}

func (p *Panel) notifyAuthFailure(err error) {
	p.mu.RLock()
	subs := make([]func(error), len(p.onAuthFailure))
	copy(subs, p.onAuthFailure)
	p.mu.RUnlock()
	for _, fn := range subs {
		fn(err)
	}
}

// SetCachedState seeds the model from a persisted snapshot so the boundary
// has state before the first poll. Device classes are seeded too, keeping
// entity types stable across restarts.
func (p *Panel) SetCachedState(state *State) {
	for _, z := range state.Zones {
		p.rec.SeedClass(z.ID, z.DeviceClass)
	}
	p.syncState(state)
}

// Dispatch sends a mutating command. See Dispatcher.Dispatch.
func (p *Panel) Dispatch(ctx context.Context, intent Intent) error {
	return p.dispatcher.Dispatch(ctx, intent)
}

// ArmArea arms a single area.
func (p *Panel) ArmArea(ctx context.Context, areaID int) error {
	return p.Dispatch(ctx, Intent{Kind: IntentArmArea, AreaID: areaID})
}

// DisarmArea disarms a single area.
func (p *Panel) DisarmArea(ctx context.Context, areaID int) error {
	return p.Dispatch(ctx, Intent{Kind: IntentDisarmArea, AreaID: areaID})
}

// ArmAll arms every area on the panel.
func (p *Panel) ArmAll(ctx context.Context) error {
	return p.Dispatch(ctx, Intent{Kind: IntentArmAll})
}

// DisarmAll disarms every area on the panel.
func (p *Panel) DisarmAll(ctx context.Context) error {
	return p.Dispatch(ctx, Intent{Kind: IntentDisarmAll})
}

// BypassZone bypasses or reinstates a zone.
func (p *Panel) BypassZone(ctx context.Context, zoneID int, bypass bool) error {
	return p.Dispatch(ctx, Intent{Kind: IntentBypassZone, ZoneID: zoneID, Bypass: bypass})
}

// ActivateScenario runs a scenario by id.
func (p *Panel) ActivateScenario(ctx context.Context, scenarioID int) error {
	return p.Dispatch(ctx, Intent{Kind: IntentActivateScenario, ScenarioID: scenarioID})
}

// ArmAway activates the scenario mapped to the arm-away role.
func (p *Panel) ArmAway(ctx context.Context) error {
	return p.activateRole(ctx, func(r Roles) int { return r.ArmAway })
}

// ArmHome activates the scenario mapped to the arm-home role.
func (p *Panel) ArmHome(ctx context.Context) error {
	return p.activateRole(ctx, func(r Roles) int { return r.ArmHome })
}

// Disarm activates the scenario mapped to the disarm role.
func (p *Panel) Disarm(ctx context.Context) error {
	return p.activateRole(ctx, func(r Roles) int { return r.Disarm })
}

func (p *Panel) activateRole(ctx context.Context, pick func(Roles) int) error {
	roles, ok := p.Roles()
	if !ok {
		return ErrScenarioUnmapped
	}
	id := pick(roles)
	if id == RoleUnset {
		return ErrScenarioUnmapped
	}
	return p.ActivateScenario(ctx, id)
}
