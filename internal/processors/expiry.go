package processors

import (
	"context"

	"library-circulation/internal/models"
)

func (p *Processors) releaseReservation(ctx context.Context, task *models.OutboxTask) error {
	v, err := payloadFields(task, models.PayloadUserID, models.PayloadBookID, models.PayloadLibraryID)
	if err != nil {
		return err
	}
	expiredAt, err := millis(task, models.PayloadExpiresAt)
	if err != nil {
		return err
	}

	released, err := p.ledger.ReleaseReservation(ctx, v[0], v[1], v[2], expiredAt)
	if err != nil {
		return err
	}
	if !released {
		p.logger.Debug("reservation already gone, nothing to release",
			"user_id", v[0], "book_id", v[1], "branch_id", v[2])
	}
	return nil
}

func (p *Processors) markLoanOverdue(ctx context.Context, task *models.OutboxTask) error {
	v, err := payloadFields(task, models.PayloadUserID, models.PayloadBookID, models.PayloadLibraryID)
	if err != nil {
		return err
	}
	dueDate, err := millis(task, models.PayloadExpiresAt)
	if err != nil {
		return err
	}

	marked, err := p.ledger.MarkLoanOverdue(ctx, v[0], v[1], v[2], dueDate)
	if err != nil {
		return err
	}
	if marked {
		p.logger.Info("loan marked overdue", "user_id", v[0], "book_id", v[1], "branch_id", v[2])
	}
	return nil
}
