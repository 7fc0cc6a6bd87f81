package panel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daemonp/inim2mqtt/internal/config"
)

func newTestPanel(t *testing.T) *Panel {
	t.Helper()

	cfg := &config.Config{
		Inim: config.InimConfig{
			Email:        "user@example.com",
			Password:     "secret",
			UserCode:     "1234",
			ScanInterval: 30,
			MaxBackoff:   300,
		},
	}
	return NewPanel(cfg, testLogger())
}

func TestPanelSubscriberFanOut(t *testing.T) {
	t.Parallel()

	p := newTestPanel(t)

	var mu sync.Mutex
	batches := 0
	available := 0
	var authErr error

	for i := 0; i < 2; i++ {
		p.OnChange(func(changes []StateChange) {
			mu.Lock()
			batches++
			mu.Unlock()
		})
	}
	p.OnAvailability(func(a bool) {
		mu.Lock()
		available++
		mu.Unlock()
	})
	p.OnAuthFailure(func(err error) {
		mu.Lock()
		authErr = err
		mu.Unlock()
	})

	p.SetCachedState(NewReconciler().FromDevice(testDevice()))
	p.notifyAvailability(true)
	p.notifyAuthFailure(ErrScenarioUnmapped)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, batches, "every OnChange subscriber receives the batch")
	require.Equal(t, 1, available)
	require.Equal(t, ErrScenarioUnmapped, authErr)
}

func TestPublishedEventsMatchCommittedState(t *testing.T) {
	t.Parallel()

	p := newTestPanel(t)
	p.SetCachedState(NewReconciler().FromDevice(testDevice()))

	// Every delivered area event must agree with the state visible at delivery
	// time: an overlay publish must not land after a poll commit reverted it.
	var mu sync.Mutex
	mismatches := 0
	p.OnChange(func(changes []StateChange) {
		for _, c := range changes {
			if c.Entity != EntityArea || c.ID != 1 {
				continue
			}
			if got := p.State().Area(1).Status; got != c.Area.Status {
				mu.Lock()
				mismatches++
				mu.Unlock()
			}
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 300; i++ {
			p.applyOverlay(func(s *State) {
				if a := s.Area(1); a != nil {
					a.Status = AreaStateArmed
				}
			})
		}
	}()
	go func() {
		defer wg.Done()
		rec := NewReconciler()
		for i := 0; i < 300; i++ {
			p.syncState(rec.FromDevice(testDevice())) // area 1 disarmed
		}
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, mismatches, "published event contradicted the committed state")
}

func TestSyncStateConfirmationAfterOverlayIsSilent(t *testing.T) {
	t.Parallel()

	p := newTestPanel(t)
	rec := NewReconciler()
	p.SetCachedState(rec.FromDevice(testDevice()))

	p.applyOverlay(func(s *State) {
		s.Area(1).Status = AreaStateArmed
	})

	var mu sync.Mutex
	var got []StateChange
	p.OnChange(func(changes []StateChange) {
		mu.Lock()
		got = append(got, changes...)
		mu.Unlock()
	})

	dev := testDevice()
	dev.Areas[0].Armed = 1
	p.syncState(rec.FromDevice(dev))

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, got, "a poll confirming the overlay must not re-publish")
}
