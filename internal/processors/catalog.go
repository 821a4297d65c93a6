package processors

import (
	"context"
	"fmt"
	"strconv"

	"library-circulation/internal/models"
)

func (p *Processors) decrementCopies(ctx context.Context, task *models.OutboxTask) error {
	v, err := payloadFields(task, models.PayloadBookID, models.PayloadLibraryID, models.PayloadEventID)
	if err != nil {
		return err
	}
	return p.catalog.DecrementBranchCopies(ctx, v[0], v[1], v[2])
}

func (p *Processors) incrementCopies(ctx context.Context, task *models.OutboxTask) error {
	v, err := payloadFields(task, models.PayloadBookID, models.PayloadLibraryID, models.PayloadEventID)
	if err != nil {
		return err
	}
	return p.catalog.IncrementBranchCopies(ctx, v[0], v[1], v[2])
}

func (p *Processors) addBranch(ctx context.Context, task *models.OutboxTask) error {
	v, err := payloadFields(task, models.PayloadBookID, models.PayloadLibraryID, models.PayloadInitialValue)
	if err != nil {
		return err
	}
	copies, err := strconv.Atoi(v[2])
	if err != nil || copies < 0 {
		return fmt.Errorf("%w: invalid initial value %q", models.ErrBusinessRule, v[2])
	}
	return p.catalog.AddBranchToBook(ctx, v[0], v[1], copies)
}

func (p *Processors) removeBranch(ctx context.Context, task *models.OutboxTask) error {
	v, err := payloadFields(task, models.PayloadBookID, models.PayloadLibraryID)
	if err != nil {
		return err
	}
	return p.catalog.RemoveBranchFromBook(ctx, v[0], v[1])
}
