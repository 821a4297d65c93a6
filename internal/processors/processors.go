// Package processors applies outbox tasks to their targets: catalog and reading
// history changes go to Firestore, expiry handling goes back to Redis.
package processors

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"library-circulation/internal/models"
	"library-circulation/internal/outbox"
)

// Catalog is the durable store side of the processors.
type Catalog interface {
	DecrementBranchCopies(ctx context.Context, bookID, branchID, eventID string) error
	IncrementBranchCopies(ctx context.Context, bookID, branchID, eventID string) error
	AddBranchToBook(ctx context.Context, bookID, branchID string, copies int) error
	RemoveBranchFromBook(ctx context.Context, bookID, branchID string) error
	AddReadBook(ctx context.Context, userID, bookID, branchID string, returnedAt time.Time, eventID string) error
}

// Ledger is the fast store side of the processors.
type Ledger interface {
	ReleaseReservation(ctx context.Context, userID, bookID, branchID string, expiredAt time.Time) (bool, error)
	MarkLoanOverdue(ctx context.Context, userID, bookID, branchID string, dueDate time.Time) (bool, error)
}

// Processors holds the dependencies shared by every task handler.
type Processors struct {
	catalog Catalog
	ledger  Ledger
	logger  outbox.Logger
}

func New(catalog Catalog, ledger Ledger, logger outbox.Logger) *Processors {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processors{catalog: catalog, ledger: ledger, logger: logger}
}

// Register binds a handler for every task type.
func (p *Processors) Register(r *outbox.Registry) {
	r.Register(models.TaskDecrementBookCopies, outbox.ProcessorFunc(p.decrementCopies))
	r.Register(models.TaskIncrementBookCopies, outbox.ProcessorFunc(p.incrementCopies))
	r.Register(models.TaskAddBranchToBook, outbox.ProcessorFunc(p.addBranch))
	r.Register(models.TaskRemoveBranchFromBook, outbox.ProcessorFunc(p.removeBranch))
	r.Register(models.TaskAddReadBook, outbox.ProcessorFunc(p.addReadBook))
	r.Register(models.TaskReleaseReservation, outbox.ProcessorFunc(p.releaseReservation))
	r.Register(models.TaskMarkLoanOverdue, outbox.ProcessorFunc(p.markLoanOverdue))
}

// payloadFields reads several payload keys at once.
func payloadFields(task *models.OutboxTask, keys ...string) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		v, err := task.Require(k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// millis parses an epoch-millisecond payload value.
func millis(task *models.OutboxTask, key string) (time.Time, error) {
	raw, err := task.Require(key)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: payload %s=%q is not epoch millis", models.ErrBusinessRule, key, raw)
	}
	return time.UnixMilli(ms).UTC(), nil
}
