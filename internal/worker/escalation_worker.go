// Package worker runs the background SLA sweep.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/service"
)

// EscalationWorker periodically runs the escalation sweep. The sweep itself
// is idempotent and race-safe, so multiple workers (or overlapping ticks)
// need no extra locking.
type EscalationWorker struct {
	escalations *service.EscalationService
	interval    time.Duration
	log         zerolog.Logger
}

// NewEscalationWorker creates a worker that sweeps every interval.
func NewEscalationWorker(escalations *service.EscalationService, interval time.Duration, log zerolog.Logger) *EscalationWorker {
	return &EscalationWorker{
		escalations: escalations,
		interval:    interval,
		log:         log,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. The first
// sweep runs immediately on start.
func (w *EscalationWorker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Escalation worker started")

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Escalation worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *EscalationWorker) sweep(ctx context.Context) {
	applied, err := w.escalations.Sweep(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("Escalation sweep failed")
		return
	}
	if applied > 0 {
		w.log.Info().Int("escalated", applied).Msg("Escalation sweep applied")
	}
}
