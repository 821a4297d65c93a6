// Package circulation is the entry point for lending operations. It validates
// requests, fills in catalog details from the durable store and delegates the
// atomic work to the fast-store ledger.
package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"library-circulation/internal/models"
	"library-circulation/internal/outbox"
)

// Ledger is the fast store holding availability counters and the lending ledger.
type Ledger interface {
	Reserve(ctx context.Context, userID, bookID, branchID, title, branchName string) (*models.Reservation, error)
	CancelReservation(ctx context.Context, userID, bookID, branchID string) (bool, error)
	MarkAsLoan(ctx context.Context, branchID, userID, bookID string) (*models.Loan, error)
	CompleteLoan(ctx context.Context, branchID, userID, bookID string) (bool, error)

	DecrementCopies(ctx context.Context, bookID, branchID string) (int64, error)
	IncrementCopies(ctx context.Context, bookID, branchID string) (int64, error)
	AddBranchEntry(ctx context.Context, bookID, branchID string, initialCopies int) error
	RemoveBranchEntry(ctx context.Context, bookID, branchID string, totalCopies int) error

	Availability(ctx context.Context, bookID, branchID string) (int64, bool, error)
	SeedAvailability(ctx context.Context, bookID, branchID string, copies int) (bool, error)

	ListReservations(ctx context.Context, branchID string) ([]*models.Reservation, error)
	ListLoans(ctx context.Context, branchID string) ([]*models.Loan, error)
	ListOverdue(ctx context.Context, branchID string) ([]*models.OverdueLoan, error)
	ListUserActivity(ctx context.Context, userID string) ([]*models.UserActivity, error)
}

// Catalog is the read side of the durable store.
type Catalog interface {
	GetBook(ctx context.Context, id string) (*models.Book, error)
	GetBranch(ctx context.Context, id string) (*models.Branch, error)
	GetBranchTotalCopies(ctx context.Context, bookID, branchID string) (int, error)
	ListBooks(ctx context.Context) ([]*models.Book, error)
}

// ReserveRequest asks for a copy to be held for a user. Title and BranchName are looked
// up when empty.
type ReserveRequest struct {
	UserID     string `json:"user_id"`
	BookID     string `json:"book_id"`
	BranchID   string `json:"branch_id"`
	Title      string `json:"title,omitempty"`
	BranchName string `json:"branch_name,omitempty"`
}

// Availability is the free copy count of a book at a branch.
type Availability struct {
	BookID    string `json:"book_id"`
	BranchID  string `json:"branch_id"`
	Available int64  `json:"available"`
}

type Service struct {
	ledger  Ledger
	catalog Catalog
	logger  outbox.Logger
}

func NewService(ledger Ledger, catalog Catalog, logger outbox.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, catalog: catalog, logger: logger}
}

// Reserve holds one copy for the user until the reservation window closes.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*models.Reservation, error) {
	if err := validateIDs("user_id", req.UserID, "book_id", req.BookID, "branch_id", req.BranchID); err != nil {
		return nil, err
	}

	if req.Title == "" {
		book, err := s.catalog.GetBook(ctx, req.BookID)
		if err != nil {
			return nil, fmt.Errorf("reserve: %w", err)
		}
		req.Title = book.Title
	}
	if req.BranchName == "" {
		branch, err := s.catalog.GetBranch(ctx, req.BranchID)
		if err != nil {
			return nil, fmt.Errorf("reserve: %w", err)
		}
		req.BranchName = branch.Name
	}

	r, err := s.ledger.Reserve(ctx, req.UserID, req.BookID, req.BranchID, req.Title, req.BranchName)
	if err != nil {
		s.logger.Warn("reservation rejected", "user_id", req.UserID, "book_id", req.BookID,
			"branch_id", req.BranchID, "error", err)
		return nil, err
	}
	s.logger.Info("book reserved", "user_id", req.UserID, "book_id", req.BookID,
		"branch_id", req.BranchID, "expires_at", r.ExpiresAt)
	return r, nil
}

// CancelReservation releases a held copy. It returns false when there was nothing to cancel.
func (s *Service) CancelReservation(ctx context.Context, userID, bookID, branchID string) (bool, error) {
	if err := validateIDs("user_id", userID, "book_id", bookID, "branch_id", branchID); err != nil {
		return false, err
	}
	cancelled, err := s.ledger.CancelReservation(ctx, userID, bookID, branchID)
	if err != nil {
		return false, err
	}
	if cancelled {
		s.logger.Info("reservation cancelled", "user_id", userID, "book_id", bookID, "branch_id", branchID)
	}
	return cancelled, nil
}

// MarkAsLoan turns a live reservation into a loan.
func (s *Service) MarkAsLoan(ctx context.Context, branchID, userID, bookID string) (*models.Loan, error) {
	if err := validateIDs("branch_id", branchID, "user_id", userID, "book_id", bookID); err != nil {
		return nil, err
	}
	loan, err := s.ledger.MarkAsLoan(ctx, branchID, userID, bookID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("loan started", "user_id", userID, "book_id", bookID, "branch_id", branchID, "due_date", loan.DueDate)
	return loan, nil
}

// CompleteLoan takes a returned copy back. The reading history is updated asynchronously.
func (s *Service) CompleteLoan(ctx context.Context, branchID, userID, bookID string) error {
	if err := validateIDs("branch_id", branchID, "user_id", userID, "book_id", bookID); err != nil {
		return err
	}
	completed, err := s.ledger.CompleteLoan(ctx, branchID, userID, bookID)
	if err != nil {
		return err
	}
	if !completed {
		return fmt.Errorf("user %s, book %s at branch %s: %w", userID, bookID, branchID, models.ErrLoanNotFound)
	}
	s.logger.Info("loan completed", "user_id", userID, "book_id", bookID, "branch_id", branchID)
	return nil
}

// Availability returns the free copies of a book at a branch.
func (s *Service) Availability(ctx context.Context, bookID, branchID string) (*Availability, error) {
	if err := validateIDs("book_id", bookID, "branch_id", branchID); err != nil {
		return nil, err
	}
	n, found, err := s.ledger.Availability(ctx, bookID, branchID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("book %s at branch %s: %w", bookID, branchID, models.ErrBranchEntryNotFound)
	}
	return &Availability{BookID: bookID, BranchID: branchID, Available: n}, nil
}

func (s *Service) ListReservations(ctx context.Context, branchID string) ([]*models.Reservation, error) {
	if err := validateIDs("branch_id", branchID); err != nil {
		return nil, err
	}
	return s.ledger.ListReservations(ctx, branchID)
}

func (s *Service) ListLoans(ctx context.Context, branchID string) ([]*models.Loan, error) {
	if err := validateIDs("branch_id", branchID); err != nil {
		return nil, err
	}
	return s.ledger.ListLoans(ctx, branchID)
}

func (s *Service) ListOverdue(ctx context.Context, branchID string) ([]*models.OverdueLoan, error) {
	if err := validateIDs("branch_id", branchID); err != nil {
		return nil, err
	}
	return s.ledger.ListOverdue(ctx, branchID)
}

func (s *Service) ListUserActivity(ctx context.Context, userID string) ([]*models.UserActivity, error) {
	if err := validateIDs("user_id", userID); err != nil {
		return nil, err
	}
	return s.ledger.ListUserActivity(ctx, userID)
}

// validateIDs takes name/value pairs. IDs end up inside Redis keys and ledger fields,
// so they must be non-empty and free of the ':' separator.
func validateIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		name, value := pairs[i], pairs[i+1]
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s is required", models.ErrInvalidArgument, name)
		}
		if strings.ContainsAny(value, ":/@ \t\n") {
			return fmt.Errorf("%w: %s %q contains a reserved character", models.ErrInvalidArgument, name, value)
		}
	}
	return nil
}

// since is used in log lines that report elapsed time.
func since(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
