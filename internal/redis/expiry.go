package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ExpiryEntry is a due member of an expiry index.
type ExpiryEntry struct {
	Member    string
	UserID    string
	BookID    string
	BranchID  string
	ExpiresAt int64
}

// Key returns an identifier unique to this member and expiry.
func (e ExpiryEntry) Key() string {
	return e.Member + "@" + strconv.FormatInt(e.ExpiresAt, 10)
}

// Time returns the expiry as a time.
func (e ExpiryEntry) Time() time.Time {
	return fromMillis(e.ExpiresAt)
}

// DueReservations returns reservations whose pickup window closed at or before now.
func (s *Store) DueReservations(ctx context.Context, now time.Time, limit int) ([]ExpiryEntry, error) {
	return s.dueEntries(ctx, ReservationExpiryKey, now, limit)
}

// DueLoans returns loans whose due date is at or before now.
func (s *Store) DueLoans(ctx context.Context, now time.Time, limit int) ([]ExpiryEntry, error) {
	return s.dueEntries(ctx, LoanExpiryKey, now, limit)
}

func (s *Store) dueEntries(ctx context.Context, zset string, now time.Time, limit int) ([]ExpiryEntry, error) {
	members, err := s.rdb.ZRangeByScoreWithScores(ctx, zset, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(toMillis(now), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", zset, err)
	}

	out := make([]ExpiryEntry, 0, len(members))
	for _, z := range members {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		userID, bookID, branchID, ok := parseExpiryMember(member)
		if !ok {
			continue
		}
		out = append(out, ExpiryEntry{
			Member:    member,
			UserID:    userID,
			BookID:    bookID,
			BranchID:  branchID,
			ExpiresAt: int64(z.Score),
		})
	}
	return out, nil
}

// RemoveExpiryMember drops a swept member unless it was re-added with a new score.
func (s *Store) RemoveExpiryMember(ctx context.Context, zset string, e ExpiryEntry) (bool, error) {
	n, err := s.scripts.removeExpiryMember.run(ctx, s.rdb, []string{zset}, e.Member, e.ExpiresAt).Int()
	if err != nil {
		return false, fmt.Errorf("remove expiry member: %w", err)
	}
	return n == 1, nil
}

// ReleaseReservation frees the copy held by an expired reservation. It returns false
// when the reservation is gone or was replaced by a later one.
func (s *Store) ReleaseReservation(ctx context.Context, userID, bookID, branchID string, expiredAt time.Time) (bool, error) {
	keys := []string{
		AvailabilityKey(bookID, branchID),
		UserActivityKey(userID),
		branchReservationsKey(branchID),
		ReservationExpiryKey,
	}
	n, err := s.scripts.releaseReservation.run(ctx, s.rdb, keys,
		activityField(branchID, bookID),
		ledgerField(userID, bookID),
		expiryMember(userID, bookID, branchID),
		toMillis(expiredAt),
	).Int()
	if err != nil {
		return false, fmt.Errorf("release reservation: %w", err)
	}
	return n == 1, nil
}

// MarkLoanOverdue flags a loan past its due date. It returns false when the loan is gone
// or was replaced by a later one.
func (s *Store) MarkLoanOverdue(ctx context.Context, userID, bookID, branchID string, dueDate time.Time) (bool, error) {
	keys := []string{
		branchLoansKey(branchID),
		branchOverdueKey(branchID),
		LoanExpiryKey,
	}
	n, err := s.scripts.markOverdue.run(ctx, s.rdb, keys,
		ledgerField(userID, bookID),
		toMillis(s.now()),
		expiryMember(userID, bookID, branchID),
		toMillis(dueDate),
	).Int()
	if err != nil {
		return false, fmt.Errorf("mark loan overdue: %w", err)
	}
	return n == 1, nil
}
