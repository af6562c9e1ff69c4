package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultReapInterval is used when no interval is configured.
const DefaultReapInterval = 60 * time.Second

// Reaper periodically sweeps the registry for expired sessions. It only ever
// calls the registry's own operations, so it shares no locking logic with the
// foreground path.
type Reaper struct {
	registry *Registry
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewReaper creates a reaper for the registry.
func NewReaper(registry *Registry, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	return &Reaper{
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the sweep loop.
func (r *Reaper) Start() error {
	if r.running {
		return fmt.Errorf("reaper is already running")
	}

	r.running = true
	go r.run()

	log.Info().
		Dur("interval", r.interval).
		Msg("Session reaper started")

	return nil
}

// Stop signals the loop to stop and joins it with a bounded wait.
func (r *Reaper) Stop() error {
	if !r.running {
		return fmt.Errorf("reaper is not running")
	}

	close(r.stopCh)
	r.running = false

	select {
	case <-r.doneCh:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("reaper did not stop within 5s")
	}

	log.Info().Msg("Session reaper stopped")
	return nil
}

// IsRunning returns whether the reaper loop is active.
func (r *Reaper) IsRunning() bool {
	return r.running
}

// SweepNow runs one sweep immediately.
func (r *Reaper) SweepNow() int {
	return r.sweep()
}

func (r *Reaper) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

// sweep runs one registry sweep. A panic is logged and swallowed so one bad
// sweep never kills the loop.
func (r *Reaper) sweep() (removed int) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Session sweep failed")
		}
	}()

	removed = r.registry.ExpireSweep()
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Sweep removed expired sessions")
	}
	return removed
}
