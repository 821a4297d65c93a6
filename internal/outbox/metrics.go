package outbox

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"library-circulation/internal/models"
)

const meterName = "library-circulation/outbox"

// Metrics counts outbox task transitions.
type Metrics struct {
	created   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
}

// NewMetrics creates the counters on meter. A nil meter uses the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	m := &Metrics{}
	var err error
	if m.created, err = meter.Int64Counter("outbox_tasks_created_total",
		metric.WithDescription("Outbox tasks created")); err != nil {
		return nil, err
	}
	if m.completed, err = meter.Int64Counter("outbox_tasks_completed_total",
		metric.WithDescription("Outbox tasks completed")); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter("outbox_tasks_failed_total",
		metric.WithDescription("Outbox tasks moved to FAILED")); err != nil {
		return nil, err
	}
	if m.retried, err = meter.Int64Counter("outbox_tasks_retried_total",
		metric.WithDescription("Outbox task retries scheduled")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) record(ctx context.Context, c metric.Int64Counter, taskType models.TaskType) {
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", string(taskType))))
}

func (m *Metrics) taskCreated(ctx context.Context, t models.TaskType) {
	if m != nil {
		m.record(ctx, m.created, t)
	}
}

func (m *Metrics) taskCompleted(ctx context.Context, t models.TaskType) {
	if m != nil {
		m.record(ctx, m.completed, t)
	}
}

func (m *Metrics) taskFailed(ctx context.Context, t models.TaskType) {
	if m != nil {
		m.record(ctx, m.failed, t)
	}
}

func (m *Metrics) taskRetried(ctx context.Context, t models.TaskType) {
	if m != nil {
		m.record(ctx, m.retried, t)
	}
}
