package outbox

import (
	"context"
	"time"

	"library-circulation/internal/config"
)

// Worker polls the outbox for due tasks and recovers stuck ones.
type Worker struct {
	svc             *Service
	interval        time.Duration
	batch           int
	stuckAfter      time.Duration
	stuckRetryDelay time.Duration
}

// NewWorker builds a worker from outbox settings.
func NewWorker(svc *Service, cfg config.OutboxConfig) *Worker {
	return &Worker{
		svc:             svc,
		interval:        cfg.PollInterval,
		batch:           100,
		stuckAfter:      cfg.StuckAfter,
		stuckRetryDelay: cfg.StuckRetryDelay,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.svc.logger.Info("outbox worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.svc.logger.Info("outbox worker stopped")
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick performs one polling round.
func (w *Worker) Tick(ctx context.Context) {
	if _, err := w.svc.ResetStuck(ctx, w.stuckAfter, w.stuckRetryDelay, w.batch); err != nil {
		w.svc.logger.Error("outbox stuck-task recovery", "error", err)
	}
	if _, err := w.svc.ProcessDue(ctx, w.batch); err != nil && ctx.Err() == nil {
		w.svc.logger.Error("outbox polling", "error", err)
	}
}
