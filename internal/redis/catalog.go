package redis

import (
	"context"
	"fmt"
	"strconv"

	"library-circulation/internal/models"
)

// DecrementCopies withdraws one free copy and returns the remaining count.
func (s *Store) DecrementCopies(ctx context.Context, bookID, branchID string) (int64, error) {
	payload, err := s.catalogEvent(bookID, branchID, nil)
	if err != nil {
		return 0, err
	}

	left, err := s.scripts.decrementCopies.run(ctx, s.rdb,
		[]string{AvailabilityKey(bookID, branchID), StreamDecrementCopies},
		payload,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("decrement copies: %w", scriptError(err))
	}
	return left, nil
}

// IncrementCopies adds one free copy and returns the new count.
func (s *Store) IncrementCopies(ctx context.Context, bookID, branchID string) (int64, error) {
	payload, err := s.catalogEvent(bookID, branchID, nil)
	if err != nil {
		return 0, err
	}

	left, err := s.scripts.incrementCopies.run(ctx, s.rdb,
		[]string{AvailabilityKey(bookID, branchID), StreamIncrementCopies},
		payload,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment copies: %w", scriptError(err))
	}
	return left, nil
}

// AddBranchEntry starts stocking a book at a branch.
func (s *Store) AddBranchEntry(ctx context.Context, bookID, branchID string, initialCopies int) error {
	payload, err := s.catalogEvent(bookID, branchID, map[string]string{
		models.PayloadInitialValue: strconv.Itoa(initialCopies),
	})
	if err != nil {
		return err
	}

	err = s.scripts.addBranchEntry.run(ctx, s.rdb,
		[]string{AvailabilityKey(bookID, branchID), StreamAddLibrary},
		initialCopies,
		payload,
	).Err()
	if err != nil {
		return fmt.Errorf("add branch entry: %w", scriptError(err))
	}
	return nil
}

// RemoveBranchEntry stops stocking a book at a branch. It is refused while any
// copy is reserved or loaned, i.e. while the counter differs from totalCopies.
func (s *Store) RemoveBranchEntry(ctx context.Context, bookID, branchID string, totalCopies int) error {
	payload, err := s.catalogEvent(bookID, branchID, nil)
	if err != nil {
		return err
	}

	err = s.scripts.removeBranchEntry.run(ctx, s.rdb,
		[]string{AvailabilityKey(bookID, branchID), StreamRemoveLibrary},
		totalCopies,
		payload,
	).Err()
	if err != nil {
		return fmt.Errorf("remove branch entry: %w", scriptError(err))
	}
	return nil
}

func (s *Store) catalogEvent(bookID, branchID string, extra map[string]string) (string, error) {
	fields := map[string]string{
		models.PayloadBookID:    bookID,
		models.PayloadLibraryID: branchID,
		models.PayloadTimestamp: strconv.FormatInt(toMillis(s.now()), 10),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return encodeEvent(fields)
}
