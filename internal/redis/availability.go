package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// Availability returns the free copies of a book at a branch. found is false when the
// branch does not stock the book.
func (s *Store) Availability(ctx context.Context, bookID, branchID string) (count int64, found bool, err error) {
	raw, err := s.rdb.Get(ctx, AvailabilityKey(bookID, branchID)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get availability: %w", err)
	}

	count, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse availability %q: %w", raw, err)
	}
	return count, true, nil
}

// SeedAvailability creates the counter when it does not exist yet. It emits no stream event.
func (s *Store) SeedAvailability(ctx context.Context, bookID, branchID string, copies int) (bool, error) {
	created, err := s.rdb.SetNX(ctx, AvailabilityKey(bookID, branchID), copies, 0).Result()
	if err != nil {
		return false, fmt.Errorf("seed availability: %w", err)
	}
	return created, nil
}
