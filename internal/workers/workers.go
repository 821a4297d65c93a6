// Package workers moves fast-store events into the outbox: stream relays turn
// mutation records into tasks and sweepers turn elapsed deadlines into tasks.
package workers

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"library-circulation/internal/models"
	"library-circulation/internal/outbox"
)

// TaskCreator enqueues outbox tasks under an idempotency key.
type TaskCreator interface {
	CreateTaskWithKey(ctx context.Context, key string, taskType models.TaskType, payload map[string]string) (*models.OutboxTask, bool, error)
}

type options struct {
	now    func() time.Time
	logger outbox.Logger
	meter  metric.Meter
}

// Option configures a relay or sweeper.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l outbox.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMeter sets the meter for worker counters. The default is the global provider.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// every calls fn on each tick until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
