package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	goredis "github.com/redis/go-redis/v9"

	"library-circulation/internal/models"
)

// activityEntry is the JSON value stored per book in a user's activity hash.
type activityEntry struct {
	Status       string `json:"status"`
	Title        string `json:"title"`
	LibraryName  string `json:"libraryName"`
	DeadlineDate string `json:"deadlineDate"`
}

// Reserve holds one copy for the user for the reservation window.
func (s *Store) Reserve(ctx context.Context, userID, bookID, branchID, title, branchName string) (*models.Reservation, error) {
	now := s.now().Truncate(time.Millisecond)
	expires := now.Add(s.reservationTTL)

	keys := []string{
		AvailabilityKey(bookID, branchID),
		UserActivityKey(userID),
		branchReservationsKey(branchID),
		branchLoansKey(branchID),
		ReservationExpiryKey,
	}
	err := s.scripts.reserve.run(ctx, s.rdb, keys,
		activityField(branchID, bookID),
		ledgerField(userID, bookID),
		expiryMember(userID, bookID, branchID),
		toMillis(now),
		toMillis(expires),
		s.maxReservations,
		title,
		branchName,
	).Err()
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", scriptError(err))
	}

	return &models.Reservation{
		UserID:     userID,
		BookID:     bookID,
		BranchID:   branchID,
		ReservedAt: now.UTC(),
		ExpiresAt:  expires.UTC(),
	}, nil
}

// CancelReservation releases the user's reservation. It returns false when there was none.
func (s *Store) CancelReservation(ctx context.Context, userID, bookID, branchID string) (bool, error) {
	keys := []string{
		AvailabilityKey(bookID, branchID),
		UserActivityKey(userID),
		branchReservationsKey(branchID),
		ReservationExpiryKey,
	}
	n, err := s.scripts.cancelReservation.run(ctx, s.rdb, keys,
		activityField(branchID, bookID),
		ledgerField(userID, bookID),
		expiryMember(userID, bookID, branchID),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cancel reservation: %w", scriptError(err))
	}
	return n == 1, nil
}

// MarkAsLoan turns a live reservation into a loan. The availability counter is unchanged.
func (s *Store) MarkAsLoan(ctx context.Context, branchID, userID, bookID string) (*models.Loan, error) {
	now := s.now().Truncate(time.Millisecond)
	due := now.Add(s.loanTTL)

	keys := []string{
		UserActivityKey(userID),
		branchReservationsKey(branchID),
		branchLoansKey(branchID),
		ReservationExpiryKey,
		LoanExpiryKey,
	}
	err := s.scripts.markAsLoan.run(ctx, s.rdb, keys,
		activityField(branchID, bookID),
		ledgerField(userID, bookID),
		expiryMember(userID, bookID, branchID),
		toMillis(now),
		toMillis(due),
	).Err()
	if err != nil {
		return nil, fmt.Errorf("mark as loan: %w", scriptError(err))
	}

	return &models.Loan{
		UserID:   userID,
		BookID:   bookID,
		BranchID: branchID,
		LoanedAt: now.UTC(),
		DueDate:  due.UTC(),
	}, nil
}

// CompleteLoan returns the copy and emits a completed-loan event.
// It returns false when no such loan exists.
func (s *Store) CompleteLoan(ctx context.Context, branchID, userID, bookID string) (bool, error) {
	payload, err := encodeEvent(map[string]string{
		models.PayloadUserID:    userID,
		models.PayloadBookID:    bookID,
		models.PayloadLibraryID: branchID,
		models.PayloadTimestamp: strconv.FormatInt(toMillis(s.now()), 10),
	})
	if err != nil {
		return false, err
	}

	keys := []string{
		AvailabilityKey(bookID, branchID),
		UserActivityKey(userID),
		branchLoansKey(branchID),
		branchOverdueKey(branchID),
		LoanExpiryKey,
		StreamCompletedLoans,
	}
	n, err := s.scripts.completeLoan.run(ctx, s.rdb, keys,
		activityField(branchID, bookID),
		ledgerField(userID, bookID),
		expiryMember(userID, bookID, branchID),
		payload,
	).Int()
	if err != nil {
		return false, fmt.Errorf("complete loan: %w", scriptError(err))
	}
	return n == 1, nil
}

// ListReservations returns the branch's live reservations. Entries whose expiry has
// passed are awaiting release and are left out.
func (s *Store) ListReservations(ctx context.Context, branchID string) ([]*models.Reservation, error) {
	entries, err := s.rdb.HGetAll(ctx, branchReservationsKey(branchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	fields := sortedFields(entries)
	scores, err := s.expiryScores(ctx, ReservationExpiryKey, branchID, fields)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	now := s.now()
	var out []*models.Reservation
	for i, field := range fields {
		userID, bookID, ok := parseLedgerField(field)
		if !ok || scores[i] == nil {
			continue
		}
		r := &models.Reservation{
			UserID:     userID,
			BookID:     bookID,
			BranchID:   branchID,
			ReservedAt: parseMillis(entries[field]),
			ExpiresAt:  fromMillis(*scores[i]),
		}
		if r.IsExpired(now) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ListLoans returns the branch's active loans.
func (s *Store) ListLoans(ctx context.Context, branchID string) ([]*models.Loan, error) {
	entries, err := s.rdb.HGetAll(ctx, branchLoansKey(branchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	fields := sortedFields(entries)
	scores, err := s.expiryScores(ctx, LoanExpiryKey, branchID, fields)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	var out []*models.Loan
	for i, field := range fields {
		userID, bookID, ok := parseLedgerField(field)
		if !ok {
			continue
		}
		loanedAt := parseMillis(entries[field])
		due := loanedAt.Add(s.loanTTL)
		if scores[i] != nil {
			due = fromMillis(*scores[i])
		}
		out = append(out, &models.Loan{
			UserID:   userID,
			BookID:   bookID,
			BranchID: branchID,
			LoanedAt: loanedAt,
			DueDate:  due,
		})
	}
	return out, nil
}

// ListOverdue returns the branch's loans flagged past due.
func (s *Store) ListOverdue(ctx context.Context, branchID string) ([]*models.OverdueLoan, error) {
	entries, err := s.rdb.HGetAll(ctx, branchOverdueKey(branchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list overdue: %w", err)
	}

	var out []*models.OverdueLoan
	for _, field := range sortedFields(entries) {
		userID, bookID, ok := parseLedgerField(field)
		if !ok {
			continue
		}
		out = append(out, &models.OverdueLoan{
			UserID:          userID,
			BookID:          bookID,
			BranchID:        branchID,
			MarkedOverdueAt: parseMillis(entries[field]),
		})
	}
	return out, nil
}

// ListUserActivity returns a user's active reservations and loans.
func (s *Store) ListUserActivity(ctx context.Context, userID string) ([]*models.UserActivity, error) {
	entries, err := s.rdb.HGetAll(ctx, UserActivityKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list user activity: %w", err)
	}

	var out []*models.UserActivity
	for _, field := range sortedFields(entries) {
		branchID, bookID, ok := parseActivityField(field)
		if !ok {
			continue
		}
		var entry activityEntry
		if err := jsoniter.ConfigFastest.UnmarshalFromString(entries[field], &entry); err != nil {
			return nil, fmt.Errorf("decode activity %s: %w", field, err)
		}
		out = append(out, &models.UserActivity{
			BookID:       bookID,
			BranchID:     branchID,
			Status:       models.ActivityStatus(entry.Status),
			Title:        entry.Title,
			LibraryName:  entry.LibraryName,
			DeadlineDate: parseMillis(entry.DeadlineDate),
		})
	}
	return out, nil
}

// expiryScores fetches the expiry score of each ledger field in one round trip.
// A nil entry means the member is absent.
func (s *Store) expiryScores(ctx context.Context, zset, branchID string, fields []string) ([]*int64, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*goredis.FloatCmd, len(fields))
	for i, field := range fields {
		userID, bookID, _ := parseLedgerField(field)
		cmds[i] = pipe.ZScore(ctx, zset, expiryMember(userID, bookID, branchID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	out := make([]*int64, len(fields))
	for i, cmd := range cmds {
		score, err := cmd.Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ms := int64(score)
		out[i] = &ms
	}
	return out, nil
}

func sortedFields(m map[string]string) []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func parseMillis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return fromMillis(ms)
}

func encodeEvent(fields map[string]string) (string, error) {
	payload, err := jsoniter.ConfigFastest.MarshalToString(fields)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return payload, nil
}
