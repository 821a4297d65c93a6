package firebase

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"library-circulation/internal/models"
)

const (
	OutboxCollection = "outbox_tasks"
)

// CreateTask stores a new task under task.ID. It returns false when a task with
// that ID already exists.
func (c *Client) CreateTask(ctx context.Context, task *models.OutboxTask) (bool, error) {
	if task == nil || task.ID == "" {
		return false, fmt.Errorf("task ID is required")
	}

	_, err := c.Firestore.Collection(OutboxCollection).Doc(task.ID).Create(ctx, task)
	if isAlreadyExists(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create task: %w", err)
	}
	return true, nil
}

// GetTask fetches a task by ID.
func (c *Client) GetTask(ctx context.Context, id string) (*models.OutboxTask, error) {
	doc, err := c.Firestore.Collection(OutboxCollection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return decodeTask(doc)
}

// ClaimTask moves a PENDING or RETRY_SCHEDULED task to IN_PROGRESS.
// claimed is false when another worker got there first or the task is finished.
func (c *Client) ClaimTask(ctx context.Context, id string, now time.Time) (task *models.OutboxTask, claimed bool, err error) {
	ref := c.Firestore.Collection(OutboxCollection).Doc(id)

	err = c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = false
		doc, err := tx.Get(ref)
		if isNotFound(err) {
			return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		task, err = decodeTask(doc)
		if err != nil {
			return err
		}
		if !task.Status.IsClaimable() {
			return nil
		}

		task.Status = models.TaskInProgress
		task.UpdatedAt = now
		task.Version++
		claimed = true
		return tx.Set(ref, task)
	})
	if err != nil {
		return nil, false, fmt.Errorf("claim task: %w", err)
	}
	return task, claimed, nil
}

// SaveTask writes task if the stored version still equals expectedVersion and
// bumps the version. Otherwise it returns models.ErrConcurrentUpdate.
func (c *Client) SaveTask(ctx context.Context, task *models.OutboxTask, expectedVersion int64) error {
	ref := c.Firestore.Collection(OutboxCollection).Doc(task.ID)

	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if isNotFound(err) {
			return fmt.Errorf("task %s: %w", task.ID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		current, err := decodeTask(doc)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("task %s at version %d, expected %d: %w",
				task.ID, current.Version, expectedVersion, models.ErrConcurrentUpdate)
		}

		task.Version = expectedVersion + 1
		return tx.Set(ref, task)
	})
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// FindProcessable returns tasks in the given status that are due at now, oldest first.
func (c *Client) FindProcessable(ctx context.Context, status models.TaskStatus, now time.Time, limit int) ([]*models.OutboxTask, error) {
	q := c.Firestore.Collection(OutboxCollection).
		Where("status", "==", string(status)).
		Where("next_retry_at", "<=", now).
		OrderBy("next_retry_at", firestore.Asc).
		Limit(limit)
	return queryTasks(ctx, q)
}

// FindStuck returns IN_PROGRESS tasks not updated since before.
func (c *Client) FindStuck(ctx context.Context, before time.Time, limit int) ([]*models.OutboxTask, error) {
	q := c.Firestore.Collection(OutboxCollection).
		Where("status", "==", string(models.TaskInProgress)).
		Where("updated_at", "<=", before).
		Limit(limit)
	return queryTasks(ctx, q)
}

// ListTasks returns tasks in the given status, newest first.
func (c *Client) ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]*models.OutboxTask, error) {
	q := c.Firestore.Collection(OutboxCollection).
		Where("status", "==", string(status)).
		OrderBy("created_at", firestore.Desc).
		Limit(limit)
	return queryTasks(ctx, q)
}

// DeleteCompletedBefore removes COMPLETED tasks created before the cutoff.
func (c *Client) DeleteCompletedBefore(ctx context.Context, before time.Time) (int, error) {
	iter := c.Firestore.Collection(OutboxCollection).
		Where("status", "==", string(models.TaskCompleted)).
		Where("created_at", "<", before).
		Documents(ctx)
	defer iter.Stop()

	bw := c.Firestore.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("iterate completed tasks: %w", err)
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("queue delete %s: %w", doc.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	deleted := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return deleted, fmt.Errorf("delete completed task: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

func queryTasks(ctx context.Context, q firestore.Query) ([]*models.OutboxTask, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var tasks []*models.OutboxTask
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate tasks: %w", err)
		}
		task, err := decodeTask(doc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func decodeTask(doc *firestore.DocumentSnapshot) (*models.OutboxTask, error) {
	var task models.OutboxTask
	if err := doc.DataTo(&task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", doc.Ref.ID, err)
	}
	task.ID = doc.Ref.ID
	return &task, nil
}
