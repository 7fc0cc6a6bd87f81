package panel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/daemonp/inim2mqtt/internal/inim"
	"github.com/daemonp/inim2mqtt/internal/log"
)

// PollerConfig wires a Poller to its owner. Fetch obtains a fresh snapshot;
// Commit reconciles it into the model and fans the deltas out to subscribers,
// keeping swap and publish ordered under the owner's lock.
type PollerConfig struct {
	Log        *log.Logger
	Interval   time.Duration
	MaxBackoff time.Duration

	Fetch  func(ctx context.Context) (*State, error)
	Commit func(next *State)

	// OnAvailability is called with false when polling starts failing and
	// with true once a poll succeeds again. The last good snapshot is kept
	// either way.
	OnAvailability func(available bool)

	// OnAuthFailure is called once with the terminal error; the loop then
	// stops until credentials are refreshed externally.
	OnAuthFailure func(err error)
}

// Poller runs the fixed-interval polling loop. One poll is outstanding at
// most: a tick or forced poll arriving while a poll is in flight is dropped,
// not queued.
type Poller struct {
	cfg PollerConfig

	polling   atomic.Bool
	force     chan struct{}
	failures  int
	available bool
	started   bool
}

func NewPoller(cfg PollerConfig) *Poller {
	return &Poller{
		cfg:   cfg,
		force: make(chan struct{}, 1),
	}
}

// ForcePoll schedules an immediate poll if the loop is idle. If a poll is
// already in flight this is a no-op: the outstanding request will observe the
// state the caller is interested in, or the next tick will.
func (p *Poller) ForcePoll() {
	if p.polling.Load() {
		return
	}
	select {
	case p.force <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is canceled or a terminal auth failure stops the loop.
// The first poll happens after one full interval; the owner is expected to
// have fetched an initial snapshot before starting the loop.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-p.force:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		delay, ok := p.poll(ctx)
		if !ok {
			return
		}

		// A force queued while we were polling is stale; drop it.
		select {
		case <-p.force:
		default:
		}

		timer.Reset(delay)
	}
}

// poll runs one cycle and returns the delay before the next one. ok is false
// when the loop must stop.
func (p *Poller) poll(ctx context.Context) (delay time.Duration, ok bool) {
	p.polling.Store(true)
	defer p.polling.Store(false)

	state, err := p.cfg.Fetch(ctx)
	if ctx.Err() != nil {
		return 0, false
	}
	if err != nil {
		switch inim.Classify(err) {
		case inim.KindAuth, inim.KindInvalidCredentials:
			p.cfg.Log.Error("Polling stopped, re-authentication required: %v", err)
			p.setAvailable(false)
			if p.cfg.OnAuthFailure != nil {
				p.cfg.OnAuthFailure(err)
			}
			return 0, false
		default:
			p.failures++
			delay = p.backoffDelay()
			p.cfg.Log.Warning("Poll failed (attempt %d), next try in %s: %v", p.failures, delay, err)
			p.setAvailable(false)
			return delay, true
		}
	}

	p.failures = 0
	p.cfg.Commit(state)
	p.setAvailable(true)

	return p.cfg.Interval, true
}

// backoffDelay doubles per consecutive failure, capped at MaxBackoff.
func (p *Poller) backoffDelay() time.Duration {
	delay := p.cfg.Interval
	for i := 1; i < p.failures; i++ {
		delay *= 2
		if delay >= p.cfg.MaxBackoff {
			return p.cfg.MaxBackoff
		}
	}
	if delay > p.cfg.MaxBackoff {
		delay = p.cfg.MaxBackoff
	}
	return delay
}

func (p *Poller) setAvailable(available bool) {
	if p.started && p.available == available {
		return
	}
	p.started = true
	p.available = available
	if p.cfg.OnAvailability != nil {
		p.cfg.OnAvailability(available)
	}
}
