package processors

import (
	"context"

	"library-circulation/internal/models"
)

// addReadBook records a returned loan in the reader's history.
func (p *Processors) addReadBook(ctx context.Context, task *models.OutboxTask) error {
	v, err := payloadFields(task, models.PayloadUserID, models.PayloadBookID, models.PayloadLibraryID, models.PayloadEventID)
	if err != nil {
		return err
	}
	returnedAt, err := millis(task, models.PayloadTimestamp)
	if err != nil {
		return err
	}
	return p.catalog.AddReadBook(ctx, v[0], v[1], v[2], returnedAt, v[3])
}
