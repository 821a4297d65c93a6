package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ExpiredReservation_ReleasedOnce(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)

	r, err := s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)

	due, err := s.DueReservations(ctx, clock.Now(), 100)
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Advance(72*time.Hour + time.Millisecond)
	due, err = s.DueReservations(ctx, clock.Now(), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "u1", due[0].UserID)
	assert.Equal(t, "b1", due[0].BookID)
	assert.Equal(t, "lib1", due[0].BranchID)
	assert.Equal(t, r.ExpiresAt, due[0].Time())

	removed, err := s.RemoveExpiryMember(ctx, ReservationExpiryKey, due[0])
	require.NoError(t, err)
	assert.True(t, removed)

	released, err := s.ReleaseReservation(ctx, "u1", "b1", "lib1", due[0].Time())
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, int64(1), availability(t, s, "b1", "lib1"))

	released, err = s.ReleaseReservation(ctx, "u1", "b1", "lib1", due[0].Time())
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, int64(1), availability(t, s, "b1", "lib1"))

	activity, err := s.ListUserActivity(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, activity)
}

func Test_ReleaseReservation_SkipsNewerReservation(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)

	first, err := s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)
	clock.Advance(73 * time.Hour)

	cancelled, err := s.CancelReservation(ctx, "u1", "b1", "lib1")
	require.NoError(t, err)
	require.True(t, cancelled)
	_, err = s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)

	released, err := s.ReleaseReservation(ctx, "u1", "b1", "lib1", first.ExpiresAt)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, int64(0), availability(t, s, "b1", "lib1"))
}

func Test_RemoveExpiryMember_KeepsRescheduled(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)

	_, err := s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)
	clock.Advance(73 * time.Hour)
	due, err := s.DueReservations(ctx, clock.Now(), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)

	stale := due[0]
	stale.ExpiresAt--
	removed, err := s.RemoveExpiryMember(ctx, ReservationExpiryKey, stale)
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := s.rdb.ZCard(ctx, ReservationExpiryKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func Test_OverdueLoan(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, "b1", "lib1", 1)

	_, err := s.Reserve(ctx, "u1", "b1", "lib1", "", "")
	require.NoError(t, err)
	loan, err := s.MarkAsLoan(ctx, "lib1", "u1", "b1")
	require.NoError(t, err)

	clock.Advance(31 * 24 * time.Hour)
	due, err := s.DueLoans(ctx, clock.Now(), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, loan.DueDate, due[0].Time())

	marked, err := s.MarkLoanOverdue(ctx, "u1", "b1", "lib1", due[0].Time())
	require.NoError(t, err)
	assert.True(t, marked)
	assert.Equal(t, int64(0), availability(t, s, "b1", "lib1"))

	overdue, err := s.ListOverdue(ctx, "lib1")
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, clock.Now(), overdue[0].MarkedOverdueAt)

	_, err = s.RemoveExpiryMember(ctx, LoanExpiryKey, due[0])
	require.NoError(t, err)
	loans, err := s.ListLoans(ctx, "lib1")
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, loan.DueDate, loans[0].DueDate)

	completed, err := s.CompleteLoan(ctx, "lib1", "u1", "b1")
	require.NoError(t, err)
	require.True(t, completed)

	overdue, err = s.ListOverdue(ctx, "lib1")
	require.NoError(t, err)
	assert.Empty(t, overdue)

	marked, err = s.MarkLoanOverdue(ctx, "u1", "b1", "lib1", due[0].Time())
	require.NoError(t, err)
	assert.False(t, marked)
}
