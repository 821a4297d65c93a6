package workers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"library-circulation/internal/config"
	"library-circulation/internal/models"
	"library-circulation/internal/redis"
)

// ExpirySource exposes the expiry indexes.
type ExpirySource interface {
	DueReservations(ctx context.Context, now time.Time, limit int) ([]redis.ExpiryEntry, error)
	DueLoans(ctx context.Context, now time.Time, limit int) ([]redis.ExpiryEntry, error)
	RemoveExpiryMember(ctx context.Context, zset string, e redis.ExpiryEntry) (bool, error)
}

// Sweeper turns elapsed entries of one expiry index into outbox tasks.
type Sweeper struct {
	source    ExpirySource
	tasks     TaskCreator
	name      string
	zset      string
	taskType  models.TaskType
	eventType string
	due       func(ctx context.Context, now time.Time, limit int) ([]redis.ExpiryEntry, error)
	batch     int
	interval  time.Duration
	opts      options
	events    metric.Int64Counter
}

// NewReservationSweeper releases reservations whose pickup window closed.
func NewReservationSweeper(source ExpirySource, tasks TaskCreator, cfg config.WorkersConfig, opts ...Option) (*Sweeper, error) {
	s := &Sweeper{
		name:      "reservation",
		zset:      redis.ReservationExpiryKey,
		taskType:  models.TaskReleaseReservation,
		eventType: models.EventExpiredReservation,
		due:       source.DueReservations,
	}
	return s.init(source, tasks, cfg, opts)
}

// NewLoanSweeper flags loans past their due date.
func NewLoanSweeper(source ExpirySource, tasks TaskCreator, cfg config.WorkersConfig, opts ...Option) (*Sweeper, error) {
	s := &Sweeper{
		name:      "loan",
		zset:      redis.LoanExpiryKey,
		taskType:  models.TaskMarkLoanOverdue,
		eventType: models.EventExpiredLoan,
		due:       source.DueLoans,
	}
	return s.init(source, tasks, cfg, opts)
}

func (s *Sweeper) init(source ExpirySource, tasks TaskCreator, cfg config.WorkersConfig, opts []Option) (*Sweeper, error) {
	s.source = source
	s.tasks = tasks
	s.batch = cfg.SweepBatch
	s.interval = cfg.SweepInterval
	s.opts = buildOptions(opts)

	meter := s.opts.meter
	if meter == nil {
		meter = otel.Meter("library-circulation/workers")
	}
	events, err := meter.Int64Counter("expiry_events_total",
		metric.WithDescription("Expired reservations and loans handed to the outbox"))
	if err != nil {
		return nil, fmt.Errorf("expiry counter: %w", err)
	}
	s.events = events
	return s, nil
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.opts.logger.Info("expiry sweeper started", "sweeper", s.name, "interval", s.interval)
	every(ctx, s.interval, func(ctx context.Context) {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.opts.logger.Error("expiry sweep", "sweeper", s.name, "error", err)
		}
	})
	s.opts.logger.Info("expiry sweeper stopped", "sweeper", s.name)
	return nil
}

// Sweep hands every due entry to the outbox and returns how many were handed over.
// An entry leaves the index only after its task exists.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.opts.now()
	entries, err := s.due(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, e := range entries {
		payload := map[string]string{
			models.PayloadUserID:    e.UserID,
			models.PayloadBookID:    e.BookID,
			models.PayloadLibraryID: e.BranchID,
			models.PayloadEventType: s.eventType,
			models.PayloadExpiresAt: strconv.FormatInt(e.ExpiresAt, 10),
			models.PayloadEventID:   e.Key(),
			models.PayloadTimestamp: strconv.FormatInt(now.UnixMilli(), 10),
		}
		key := string(s.taskType) + ":" + e.Key()
		if _, _, err := s.tasks.CreateTaskWithKey(ctx, key, s.taskType, payload); err != nil {
			s.opts.logger.Error("submit expiry event", "sweeper", s.name, "member", e.Member, "error", err)
			continue
		}

		if _, err := s.source.RemoveExpiryMember(ctx, s.zset, e); err != nil {
			s.opts.logger.Warn("remove swept expiry member", "sweeper", s.name, "member", e.Member, "error", err)
			continue
		}
		s.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", s.eventType)))
		swept++
	}

	if swept > 0 {
		s.opts.logger.Debug("expiry sweep finished", "sweeper", s.name, "swept", swept)
	}
	return swept, nil
}
