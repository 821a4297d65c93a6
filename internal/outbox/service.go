package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"library-circulation/internal/models"
)

// saveAttempts bounds reload-and-reapply rounds on version conflicts.
const saveAttempts = 3

// Store persists outbox tasks. SaveTask must compare the stored version with
// expectedVersion, fail with models.ErrConcurrentUpdate on mismatch and set
// task.Version to the new stored version on success.
type Store interface {
	CreateTask(ctx context.Context, task *models.OutboxTask) (bool, error)
	GetTask(ctx context.Context, id string) (*models.OutboxTask, error)
	ClaimTask(ctx context.Context, id string, now time.Time) (*models.OutboxTask, bool, error)
	SaveTask(ctx context.Context, task *models.OutboxTask, expectedVersion int64) error
	FindProcessable(ctx context.Context, status models.TaskStatus, now time.Time, limit int) ([]*models.OutboxTask, error)
	FindStuck(ctx context.Context, before time.Time, limit int) ([]*models.OutboxTask, error)
	ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]*models.OutboxTask, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int, error)
}

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Service creates outbox tasks and drives them through their lifecycle.
type Service struct {
	store    Store
	registry *Registry
	policy   RetryPolicy
	now      func() time.Time
	logger   Logger
	metrics  *Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics enables task counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(store Store, registry *Registry, policy RetryPolicy, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		policy:   policy,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTask enqueues a task under a fresh ID.
func (s *Service) CreateTask(ctx context.Context, taskType models.TaskType, payload map[string]string) (*models.OutboxTask, error) {
	task, _, err := s.CreateTaskWithKey(ctx, uuid.NewString(), taskType, payload)
	return task, err
}

// CreateTaskWithKey enqueues a task whose ID is derived from key. Creating the same key
// twice is accepted and reported with created=false.
func (s *Service) CreateTaskWithKey(ctx context.Context, key string, taskType models.TaskType, payload map[string]string) (task *models.OutboxTask, created bool, err error) {
	now := s.now()
	task = &models.OutboxTask{
		ID:          taskID(key),
		Type:        taskType,
		Payload:     payload,
		Status:      models.TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	}

	created, err = s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, false, fmt.Errorf("create %s task: %w", taskType, err)
	}
	if !created {
		s.logger.Debug("outbox task already exists", "task_id", task.ID, "type", taskType)
		return task, false, nil
	}

	s.metrics.taskCreated(ctx, taskType)
	s.logger.Debug("outbox task created", "task_id", task.ID, "type", taskType)
	return task, true, nil
}

// ProcessTask claims a task and runs its processor. Tasks already claimed elsewhere or
// finished are skipped. Processor failures are recorded on the task and not returned.
func (s *Service) ProcessTask(ctx context.Context, id string) error {
	task, claimed, err := s.store.ClaimTask(ctx, id, s.now())
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Debug("outbox task not claimable, skipping", "task_id", id)
		return nil
	}

	processor, ok := s.registry.Lookup(task.Type)
	if !ok {
		cause := fmt.Errorf("%w: %s", models.ErrNoProcessor, task.Type)
		s.logger.Error("no processor registered for task type",
			"task_id", task.ID, "type", task.Type, "registered", s.registry.Types())
		return s.recordFailure(ctx, task, cause, "")
	}

	if trace, cause := runProcessor(ctx, processor, task); cause != nil {
		return s.recordFailure(ctx, task, cause, trace)
	}

	err = s.update(ctx, task, func(t *models.OutboxTask) bool {
		if t.Status.IsTerminal() {
			return false
		}
		t.Status = models.TaskCompleted
		t.UpdatedAt = s.now()
		return true
	})
	if err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}

	s.metrics.taskCompleted(ctx, task.Type)
	s.logger.Info("outbox task completed", "task_id", task.ID, "type", task.Type)
	return nil
}

func (s *Service) recordFailure(ctx context.Context, task *models.OutboxTask, cause error, trace string) error {
	if trace == "" {
		trace = errorChain(cause)
	}

	var status models.TaskStatus
	err := s.update(ctx, task, func(t *models.OutboxTask) bool {
		if t.Status.IsTerminal() {
			return false
		}
		now := s.now()
		t.ErrorMessage = cause.Error()
		t.StackTrace = trace
		t.RetryCount++
		t.UpdatedAt = now

		switch {
		case errors.Is(cause, models.ErrBusinessRule), errors.Is(cause, models.ErrNoProcessor):
			t.Status = models.TaskFailed
		case s.policy.Exhausted(t.RetryCount):
			t.Status = models.TaskFailed
		default:
			t.Status = models.TaskRetryScheduled
			t.NextRetryAt = now.Add(s.policy.Delay(t.RetryCount))
		}
		status = t.Status
		return true
	})
	if err != nil {
		return fmt.Errorf("record failure of task %s: %w", task.ID, err)
	}

	switch status {
	case models.TaskFailed:
		s.metrics.taskFailed(ctx, task.Type)
		s.logger.Error("outbox task failed", "task_id", task.ID, "type", task.Type,
			"retry_count", task.RetryCount, "error", cause)
	case models.TaskRetryScheduled:
		s.metrics.taskRetried(ctx, task.Type)
		s.logger.Warn("outbox task retry scheduled", "task_id", task.ID, "type", task.Type,
			"retry_count", task.RetryCount, "max_retries", s.policy.MaxRetries,
			"next_retry_at", task.NextRetryAt, "error", cause)
	}
	return nil
}

// ProcessDue runs up to limit due PENDING tasks, then due RETRY_SCHEDULED tasks.
func (s *Service) ProcessDue(ctx context.Context, limit int) (int, error) {
	processed := 0
	for _, status := range []models.TaskStatus{models.TaskPending, models.TaskRetryScheduled} {
		tasks, err := s.store.FindProcessable(ctx, status, s.now(), limit)
		if err != nil {
			return processed, fmt.Errorf("find %s tasks: %w", status, err)
		}
		for _, t := range tasks {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			if err := s.ProcessTask(ctx, t.ID); err != nil {
				s.logger.Error("process outbox task", "task_id", t.ID, "error", err)
				continue
			}
			processed++
		}
	}
	return processed, nil
}

// ResetStuck reschedules IN_PROGRESS tasks untouched for longer than stuckAfter.
func (s *Service) ResetStuck(ctx context.Context, stuckAfter, retryDelay time.Duration, limit int) (int, error) {
	tasks, err := s.store.FindStuck(ctx, s.now().Add(-stuckAfter), limit)
	if err != nil {
		return 0, fmt.Errorf("find stuck tasks: %w", err)
	}

	reset := 0
	for _, task := range tasks {
		applied := false
		err := s.update(ctx, task, func(t *models.OutboxTask) bool {
			if t.Status != models.TaskInProgress {
				return false
			}
			now := s.now()
			t.Status = models.TaskRetryScheduled
			t.NextRetryAt = now.Add(retryDelay)
			t.UpdatedAt = now
			applied = true
			return true
		})
		if err != nil {
			s.logger.Error("reset stuck outbox task", "task_id", task.ID, "error", err)
			continue
		}
		if applied {
			reset++
			s.logger.Warn("stuck outbox task rescheduled", "task_id", task.ID, "type", task.Type)
		}
	}
	return reset, nil
}

// Cleanup deletes COMPLETED tasks created more than retention ago.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention)
	deleted, err := s.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("cleanup outbox: %w", err)
	}
	s.logger.Info("outbox cleanup finished", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}

// Requeue gives a FAILED task a fresh set of retries. It returns false when the
// task is not FAILED.
func (s *Service) Requeue(ctx context.Context, id string) (bool, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return false, err
	}

	requeued := false
	err = s.update(ctx, task, func(t *models.OutboxTask) bool {
		if t.Status != models.TaskFailed {
			return false
		}
		now := s.now()
		t.Status = models.TaskRetryScheduled
		t.RetryCount = 0
		t.NextRetryAt = now
		t.UpdatedAt = now
		requeued = true
		return true
	})
	if err != nil {
		return false, fmt.Errorf("requeue task %s: %w", id, err)
	}
	return requeued, nil
}

// List returns tasks in a status.
func (s *Service) List(ctx context.Context, status models.TaskStatus, limit int) ([]*models.OutboxTask, error) {
	return s.store.ListTasks(ctx, status, limit)
}

// update applies change and saves under the task's version, reloading and
// re-applying on conflict. change returning false abandons the update.
func (s *Service) update(ctx context.Context, task *models.OutboxTask, change func(*models.OutboxTask) bool) error {
	current := task
	for attempt := 1; ; attempt++ {
		expected := current.Version
		if !change(current) {
			return nil
		}

		err := s.store.SaveTask(ctx, current, expected)
		if err == nil {
			if current != task {
				*task = *current
			}
			return nil
		}
		if !errors.Is(err, models.ErrConcurrentUpdate) || attempt >= saveAttempts {
			return err
		}

		s.logger.Debug("outbox task version conflict, reloading", "task_id", task.ID, "attempt", attempt)
		current, err = s.store.GetTask(ctx, task.ID)
		if err != nil {
			return err
		}
	}
}

// runProcessor calls p and turns a panic into an error with its stack.
func runProcessor(ctx context.Context, p Processor, task *models.OutboxTask) (trace string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
			trace = string(debug.Stack())
		}
	}()
	return "", p.Process(ctx, task)
}

// errorChain lists each layer of a wrapped error, outermost first.
func errorChain(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		if b.Len() > 0 {
			b.WriteString("\ncaused by: ")
		}
		b.WriteString(e.Error())
	}
	return b.String()
}

// taskID maps a key to a document ID. Slashes are not allowed in IDs.
func taskID(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}
