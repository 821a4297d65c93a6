package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"library-circulation/internal/models"
)

// memStore is an in-memory Store with the same version semantics as Firestore.
type memStore struct {
	mu    sync.Mutex
	tasks map[string]models.OutboxTask
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]models.OutboxTask)}
}

func clone(t models.OutboxTask) *models.OutboxTask {
	payload := make(map[string]string, len(t.Payload))
	for k, v := range t.Payload {
		payload[k] = v
	}
	t.Payload = payload
	return &t
}

func (m *memStore) CreateTask(_ context.Context, task *models.OutboxTask) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return false, nil
	}
	m.tasks[task.ID] = *clone(*task)
	return true, nil
}

func (m *memStore) GetTask(_ context.Context, id string) (*models.OutboxTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	return clone(t), nil
}

func (m *memStore) ClaimTask(_ context.Context, id string, now time.Time) (*models.OutboxTask, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if !t.Status.IsClaimable() {
		return clone(t), false, nil
	}
	t.Status = models.TaskInProgress
	t.UpdatedAt = now
	t.Version++
	m.tasks[id] = t
	return clone(t), true, nil
}

func (m *memStore) SaveTask(_ context.Context, task *models.OutboxTask, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.tasks[task.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, models.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("task %s: %w", task.ID, models.ErrConcurrentUpdate)
	}
	task.Version = expectedVersion + 1
	m.tasks[task.ID] = *clone(*task)
	return nil
}

func (m *memStore) filter(keep func(models.OutboxTask) bool, limit int) []*models.OutboxTask {
	var out []*models.OutboxTask
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) FindProcessable(_ context.Context, status models.TaskStatus, now time.Time, limit int) ([]*models.OutboxTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(t models.OutboxTask) bool {
		return t.Status == status && !t.NextRetryAt.After(now)
	}, limit), nil
}

func (m *memStore) FindStuck(_ context.Context, before time.Time, limit int) ([]*models.OutboxTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(t models.OutboxTask) bool {
		return t.Status == models.TaskInProgress && !t.UpdatedAt.After(before)
	}, limit), nil
}

func (m *memStore) ListTasks(_ context.Context, status models.TaskStatus, limit int) ([]*models.OutboxTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(t models.OutboxTask) bool { return t.Status == status }, limit), nil
}

func (m *memStore) DeleteCompletedBefore(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tasks {
		if t.Status == models.TaskCompleted && t.CreatedAt.Before(before) {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}

// set overwrites a stored task.
func (m *memStore) set(t models.OutboxTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = *clone(t)
}

// bump simulates a concurrent writer.
func (m *memStore) bump(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[id]
	t.Version++
	m.tasks[id] = t
}
