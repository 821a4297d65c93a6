package outbox

import (
	"context"
	"sort"

	"library-circulation/internal/models"
)

// Processor applies the side effect of one task type. It must be idempotent.
// Returning an error wrapping models.ErrBusinessRule fails the task without retry.
type Processor interface {
	Process(ctx context.Context, task *models.OutboxTask) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, task *models.OutboxTask) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, task *models.OutboxTask) error {
	return f(ctx, task)
}

// Registry maps task types to processors. It is filled at startup and read-only afterwards.
type Registry struct {
	processors map[models.TaskType]Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[models.TaskType]Processor)}
}

// Register binds a processor to a task type, replacing any earlier one.
func (r *Registry) Register(taskType models.TaskType, p Processor) {
	r.processors[taskType] = p
}

// Lookup returns the processor for a task type.
func (r *Registry) Lookup(taskType models.TaskType) (Processor, bool) {
	p, ok := r.processors[taskType]
	return p, ok
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []models.TaskType {
	out := make([]models.TaskType, 0, len(r.processors))
	for t := range r.processors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Missing returns the known task types that have no processor.
func (r *Registry) Missing() []models.TaskType {
	var out []models.TaskType
	for _, t := range models.TaskTypes {
		if _, ok := r.processors[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
