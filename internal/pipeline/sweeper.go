package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oceanguard/hazard-engine/internal/metrics"
)

// sweepBatch caps how many stragglers one sweep re-enqueues. The queue is
// bounded; anything beyond the batch waits for the next tick.
const sweepBatch = 100

// Sweeper periodically re-enqueues reports that never made it through a
// pass: enqueues dropped on a full queue, failed passes, and backlog left
// over from a previous run.
type Sweeper struct {
	store    Store
	pipe     *Pipeline
	interval time.Duration
}

// NewSweeper builds a sweeper over the same store the pipeline uses.
func NewSweeper(store Store, pipe *Pipeline, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{store: store, pipe: pipe, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// The startup sweep is what replays reports persisted before a restart.
func (s *Sweeper) Run(ctx context.Context) {
	log.Info().
		Str("component", "sweeper").
		Dur("interval", s.interval).
		Msg("retry sweeper started")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "sweeper").Msg("retry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ids, err := s.store.UnprocessedReportIDs(ctx, sweepBatch)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("sweep failed to list unprocessed reports")
		}
		return
	}
	metrics.SweepBacklog.Set(float64(len(ids)))
	if len(ids) == 0 {
		return
	}

	log.Debug().Int("backlog", len(ids)).Msg("re-enqueueing unprocessed reports")
	for _, id := range ids {
		s.pipe.Enqueue(id)
	}
}
