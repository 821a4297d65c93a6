package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/internal/models"
)

func Test_Reserve_HoldsOneCopy(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 2)

	r, err := s.Reserve(ctx, "u1", "b1", "lib1", "Dune", "Central")
	require.NoError(t, err)

	assert.Equal(t, clock.Now(), r.ReservedAt)
	assert.Equal(t, clock.Now().Add(72*time.Hour), r.ExpiresAt)
	assert.Equal(t, int64(1), availability(t, s, "b1", "lib1"))

	activity, err := s.ListUserActivity(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, models.ActivityReserved, activity[0].Status)
	assert.Equal(t, "Dune", activity[0].Title)
	assert.Equal(t, "Central", activity[0].LibraryName)
	assert.Equal(t, r.ExpiresAt, activity[0].DeadlineDate)

	reservations, err := s.ListReservations(ctx, "lib1")
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, "u1", reservations[0].UserID)
	assert.Equal(t, r.ExpiresAt, reservations[0].ExpiresAt)
}

func Test_Reserve_Conflicts(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)
	seed(t, s, "b2", "lib1", 0)

	_, err := s.Reserve(ctx, "u1", "missing", "lib1", "", "")
	assert.ErrorIs(t, err, models.ErrReservationConflict)

	_, err = s.Reserve(ctx, "u1", "b2", "lib1", "", "")
	assert.ErrorIs(t, err, models.ErrReservationConflict)
	assert.Equal(t, int64(0), availability(t, s, "b2", "lib1"))

	_, err = s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)

	_, err = s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	assert.ErrorIs(t, err, models.ErrReservationConflict)
	assert.Equal(t, int64(0), availability(t, s, "b1", "lib1"))
}

func Test_Reserve_QuotaOfFive(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		seed(t, s, fmt.Sprintf("b%d", i), "lib1", 1)
	}
	for i := 0; i < 5; i++ {
		_, err := s.Reserve(ctx, "u1", fmt.Sprintf("b%d", i), "lib1", "", "")
		require.NoError(t, err)
	}

	_, err := s.Reserve(ctx, "u1", "b5", "lib1", "", "")
	assert.ErrorIs(t, err, models.ErrReservationConflict)
	assert.Equal(t, int64(1), availability(t, s, "b5", "lib1"))

	// loans do not count against the quota
	_, err = s.MarkAsLoan(ctx, "lib1", "u1", "b0")
	require.NoError(t, err)
	_, err = s.Reserve(ctx, "u1", "b5", "lib1", "", "")
	assert.NoError(t, err)
}

func Test_Reserve_ConcurrentNeverOversubscribes(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 3)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := s.Reserve(ctx, user, "b1", "lib1", "", ""); err == nil {
				granted.Add(1)
			}
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()

	assert.Equal(t, int32(3), granted.Load())
	assert.Equal(t, int64(0), availability(t, s, "b1", "lib1"))
}

func Test_Reserve_RaceForLastCopy(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := s.Reserve(ctx, user, "b1", "lib1", "", "")
			errs <- err
		}(user)
	}
	wg.Wait()
	close(errs)

	var ok, conflict int
	for err := range errs {
		if err == nil {
			ok++
		} else if assert.ErrorIs(t, err, models.ErrReservationConflict) {
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflict)
	assert.Equal(t, int64(0), availability(t, s, "b1", "lib1"))
}

func Test_CancelReservation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)

	_, err := s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)

	cancelled, err := s.CancelReservation(ctx, "u1", "b1", "lib1")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, int64(1), availability(t, s, "b1", "lib1"))

	cancelled, err = s.CancelReservation(ctx, "u1", "b1", "lib1")
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Equal(t, int64(1), availability(t, s, "b1", "lib1"))

	due, err := s.DueReservations(ctx, time.Now().Add(100*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func Test_ReserveLoanReturnScenario(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 2)

	_, err := s.Reserve(ctx, "u1", "b1", "lib1", "Dune", "Central")
	require.NoError(t, err)
	assert.Equal(t, int64(1), availability(t, s, "b1", "lib1"))

	clock.Advance(time.Hour)
	loan, err := s.MarkAsLoan(ctx, "lib1", "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(30*24*time.Hour), loan.DueDate)
	assert.Equal(t, int64(1), availability(t, s, "b1", "lib1"))

	loans, err := s.ListLoans(ctx, "lib1")
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, loan.DueDate, loans[0].DueDate)

	reservations, err := s.ListReservations(ctx, "lib1")
	require.NoError(t, err)
	assert.Empty(t, reservations)

	activity, err := s.ListUserActivity(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, models.ActivityLoaned, activity[0].Status)
	assert.Equal(t, "Dune", activity[0].Title)
	assert.Equal(t, loan.DueDate, activity[0].DeadlineDate)

	completed, err := s.CompleteLoan(ctx, "lib1", "u1", "b1")
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, int64(2), availability(t, s, "b1", "lib1"))

	msgs, err := s.rdb.XRange(ctx, StreamCompletedLoans, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var event map[string]string
	require.NoError(t, jsoniter.ConfigFastest.UnmarshalFromString(msgs[0].Values["data"].(string), &event))
	assert.Equal(t, "u1", event[models.PayloadUserID])
	assert.Equal(t, "b1", event[models.PayloadBookID])
	assert.Equal(t, "lib1", event[models.PayloadLibraryID])

	activity, err = s.ListUserActivity(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, activity)

	completed, err = s.CompleteLoan(ctx, "lib1", "u1", "b1")
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, int64(1), streamLen(t, s, StreamCompletedLoans))
}

func Test_MarkAsLoan_Refusals(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)

	_, err := s.MarkAsLoan(ctx, "lib1", "u1", "b1")
	assert.ErrorIs(t, err, models.ErrReservationNotFound)

	_, err = s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)

	clock.Advance(72 * time.Hour)
	_, err = s.MarkAsLoan(ctx, "lib1", "u1", "b1")
	assert.ErrorIs(t, err, models.ErrReservationExpired)
	assert.Equal(t, int64(0), availability(t, s, "b1", "lib1"))
}

func Test_ListReservations_HidesExpired(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)

	_, err := s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)

	clock.Advance(73 * time.Hour)
	reservations, err := s.ListReservations(ctx, "lib1")
	require.NoError(t, err)
	assert.Empty(t, reservations)
}

func Test_Conservation(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	const total = 4
	seed(t, s, "b1", "lib1", total)

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for i, u := range users {
		_, _ = s.Reserve(ctx, u, "b1", "lib1", "", "")
		if i%2 == 0 {
			_, _ = s.MarkAsLoan(ctx, "lib1", u, "b1")
		}
		if i%3 == 0 {
			_, _ = s.CancelReservation(ctx, u, "b1", "lib1")
		}
		clock.Advance(time.Minute)
	}
	_, _ = s.CompleteLoan(ctx, "lib1", "u1", "b1")

	reservations, err := s.ListReservations(ctx, "lib1")
	require.NoError(t, err)
	loans, err := s.ListLoans(ctx, "lib1")
	require.NoError(t, err)

	assert.Equal(t, int64(total), availability(t, s, "b1", "lib1")+int64(len(reservations))+int64(len(loans)))
}
