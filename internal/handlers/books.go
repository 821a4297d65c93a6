package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"library-circulation/internal/circulation"
	"library-circulation/internal/models"
)

// Circulation is the lending service behind the API.
type Circulation interface {
	Reserve(ctx context.Context, req circulation.ReserveRequest) (*models.Reservation, error)
	CancelReservation(ctx context.Context, userID, bookID, branchID string) (bool, error)
	MarkAsLoan(ctx context.Context, branchID, userID, bookID string) (*models.Loan, error)
	CompleteLoan(ctx context.Context, branchID, userID, bookID string) error
	DecrementCopies(ctx context.Context, bookID, branchID string) error
	IncrementCopies(ctx context.Context, bookID, branchID string) error
	AddBranchEntry(ctx context.Context, bookID, branchID string, initialCopies int) error
	RemoveBranchEntry(ctx context.Context, bookID, branchID string) error
	Availability(ctx context.Context, bookID, branchID string) (*circulation.Availability, error)
	ListReservations(ctx context.Context, branchID string) ([]*models.Reservation, error)
	ListLoans(ctx context.Context, branchID string) ([]*models.Loan, error)
	ListOverdue(ctx context.Context, branchID string) ([]*models.OverdueLoan, error)
	ListUserActivity(ctx context.Context, userID string) ([]*models.UserActivity, error)
}

// Outbox is the task maintenance surface.
type Outbox interface {
	List(ctx context.Context, status models.TaskStatus, limit int) ([]*models.OutboxTask, error)
	Requeue(ctx context.Context, id string) (bool, error)
}

// BooksHandler serves availability lookups.
type BooksHandler struct {
	svc Circulation
}

func NewBooksHandler(svc Circulation) *BooksHandler {
	return &BooksHandler{svc: svc}
}

// ShowAvailability handles GET /books/{bookID}/branches/{branchID}/availability.
func (h *BooksHandler) ShowAvailability(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Availability(r.Context(), chi.URLParam(r, "bookID"), chi.URLParam(r, "branchID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
