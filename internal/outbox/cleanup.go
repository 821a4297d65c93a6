package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CleanupScheduler deletes old COMPLETED tasks on a cron schedule (with seconds).
type CleanupScheduler struct {
	svc       *Service
	retention time.Duration
	cron      *cron.Cron
}

// NewCleanupScheduler parses schedule, e.g. "0 0 * * * *" for hourly.
func NewCleanupScheduler(svc *Service, schedule string, retention time.Duration) (*CleanupScheduler, error) {
	cs := &CleanupScheduler{
		svc:       svc,
		retention: retention,
		cron:      cron.New(cron.WithSeconds()),
	}
	if _, err := cs.cron.AddFunc(schedule, cs.run); err != nil {
		return nil, fmt.Errorf("outbox cleanup schedule %q: %w", schedule, err)
	}
	return cs, nil
}

// Start runs the schedule in the background until ctx is cancelled.
func (cs *CleanupScheduler) Start(ctx context.Context) {
	cs.cron.Start()
	go func() {
		<-ctx.Done()
		<-cs.cron.Stop().Done()
	}()
}

func (cs *CleanupScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := cs.svc.Cleanup(ctx, cs.retention); err != nil {
		cs.svc.logger.Error("scheduled outbox cleanup", "error", err)
	}
}
