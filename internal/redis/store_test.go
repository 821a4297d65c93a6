package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"library-circulation/internal/config"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *testClock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newTestClock()
	store := NewStore(rdb,
		WithClock(clock.Now),
		WithLedgerRules(config.LedgerConfig{
			ReservationTTL:        72 * time.Hour,
			LoanTTL:               30 * 24 * time.Hour,
			MaxActiveReservations: 5,
		}),
	)
	return store, clock, mr
}

func seed(t *testing.T, s *Store, bookID, branchID string, copies int) {
	t.Helper()
	created, err := s.SeedAvailability(context.Background(), bookID, branchID, copies)
	require.NoError(t, err)
	require.True(t, created)
}

func availability(t *testing.T, s *Store, bookID, branchID string) int64 {
	t.Helper()
	n, found, err := s.Availability(context.Background(), bookID, branchID)
	require.NoError(t, err)
	require.True(t, found)
	return n
}

func streamLen(t *testing.T, s *Store, stream string) int64 {
	t.Helper()
	n, err := s.rdb.XLen(context.Background(), stream).Result()
	require.NoError(t, err)
	return n
}
