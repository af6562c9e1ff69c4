package store

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Pruner runs the retention sweep on a cron schedule.
type Pruner struct {
	store         *AuditStore
	retentionDays int
	cron          *cron.Cron
}

// NewPruner creates a pruner for the given store. The schedule uses the
// standard five-field cron format.
func NewPruner(store *AuditStore, schedule string, retentionDays int) (*Pruner, error) {
	c := cron.New()
	p := &Pruner{
		store:         store,
		retentionDays: retentionDays,
		cron:          c,
	}

	if _, err := c.AddFunc(schedule, p.runOnce); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	return p, nil
}

// Start begins scheduled pruning.
func (p *Pruner) Start() {
	p.cron.Start()
	log.Info().Int("retention_days", p.retentionDays).Msg("Audit pruner started")
}

// Stop halts scheduled pruning, waiting for an in-flight sweep to finish.
func (p *Pruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

func (p *Pruner) runOnce() {
	removed, err := p.store.Prune(p.retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Audit prune failed")
		return
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("Pruned audit events")
	}
}
