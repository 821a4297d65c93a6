package circulation

import (
	"context"
	"fmt"
	"time"

	"library-circulation/internal/models"
)

// DecrementCopies withdraws one free copy of a book from a branch.
func (s *Service) DecrementCopies(ctx context.Context, bookID, branchID string) error {
	if err := validateIDs("book_id", bookID, "branch_id", branchID); err != nil {
		return err
	}
	left, err := s.ledger.DecrementCopies(ctx, bookID, branchID)
	if err != nil {
		s.logger.Warn("cannot decrement copies", "book_id", bookID, "branch_id", branchID, "error", err)
		return err
	}
	s.logger.Info("copy withdrawn", "book_id", bookID, "branch_id", branchID, "available", left)
	return nil
}

// IncrementCopies adds one copy of a book to a branch.
func (s *Service) IncrementCopies(ctx context.Context, bookID, branchID string) error {
	if err := validateIDs("book_id", bookID, "branch_id", branchID); err != nil {
		return err
	}
	now, err := s.ledger.IncrementCopies(ctx, bookID, branchID)
	if err != nil {
		s.logger.Warn("cannot increment copies", "book_id", bookID, "branch_id", branchID, "error", err)
		return err
	}
	s.logger.Info("copy added", "book_id", bookID, "branch_id", branchID, "available", now)
	return nil
}

// AddBranchEntry starts stocking a book at a branch.
func (s *Service) AddBranchEntry(ctx context.Context, bookID, branchID string, initialCopies int) error {
	if err := validateIDs("book_id", bookID, "branch_id", branchID); err != nil {
		return err
	}
	if initialCopies < 0 {
		return fmt.Errorf("%w: initial copies must not be negative", models.ErrInvalidArgument)
	}
	if err := s.ledger.AddBranchEntry(ctx, bookID, branchID, initialCopies); err != nil {
		return err
	}
	s.logger.Info("branch entry added", "book_id", bookID, "branch_id", branchID, "copies", initialCopies)
	return nil
}

// RemoveBranchEntry stops stocking a book at a branch. Every copy recorded in the
// durable store must be back on the shelf.
func (s *Service) RemoveBranchEntry(ctx context.Context, bookID, branchID string) error {
	if err := validateIDs("book_id", bookID, "branch_id", branchID); err != nil {
		return err
	}
	total, err := s.catalog.GetBranchTotalCopies(ctx, bookID, branchID)
	if err != nil {
		return fmt.Errorf("remove branch entry: %w", err)
	}
	if err := s.ledger.RemoveBranchEntry(ctx, bookID, branchID, total); err != nil {
		return err
	}
	s.logger.Info("branch entry removed", "book_id", bookID, "branch_id", branchID)
	return nil
}

// SeedResult summarises a SeedAvailability run.
type SeedResult struct {
	Seeded  int `json:"seeded"`
	Skipped int `json:"skipped"`
}

// SeedAvailability creates missing availability counters from the durable stock.
// Existing counters are left untouched.
func (s *Service) SeedAvailability(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	books, err := s.catalog.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed availability: %w", err)
	}

	res := &SeedResult{}
	for _, book := range books {
		for branchID, holding := range book.Branches {
			created, err := s.ledger.SeedAvailability(ctx, book.ID, branchID, holding.NumberOfCopies)
			if err != nil {
				return res, fmt.Errorf("seed %s at %s: %w", book.ID, branchID, err)
			}
			if created {
				res.Seeded++
			} else {
				res.Skipped++
			}
		}
	}

	s.logger.Info("availability seeded", "books", len(books), "seeded", res.Seeded,
		"skipped", res.Skipped, "took", since(start))
	return res, nil
}
