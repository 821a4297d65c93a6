package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"library-circulation/internal/config"
	"library-circulation/internal/models"
	"library-circulation/internal/redis"
)

type createdTask struct {
	taskType models.TaskType
	payload  map[string]string
}

// recordingOutbox keeps created tasks by key, like the outbox does.
type recordingOutbox struct {
	mu    sync.Mutex
	tasks map[string]createdTask
	calls int
	err   error
}

func newRecordingOutbox() *recordingOutbox {
	return &recordingOutbox{tasks: make(map[string]createdTask)}
}

func (o *recordingOutbox) CreateTaskWithKey(_ context.Context, key string, taskType models.TaskType, payload map[string]string) (*models.OutboxTask, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, false, o.err
	}
	task := &models.OutboxTask{ID: key, Type: taskType, Payload: payload, Status: models.TaskPending}
	if _, ok := o.tasks[key]; ok {
		return task, false, nil
	}
	o.tasks[key] = createdTask{taskType: taskType, payload: payload}
	return task, true, nil
}

func (o *recordingOutbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.WorkersConfig {
	return config.WorkersConfig{
		SweepInterval:     10 * time.Millisecond,
		SweepBatch:        100,
		RelayBatchSize:    10,
		RelayPollInterval: 10 * time.Millisecond,
	}
}

func newTestStore(t *testing.T) (*redis.Store, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := redis.NewStore(rdb,
		redis.WithClock(c.Now),
		redis.WithLedgerRules(config.LedgerConfig{
			ReservationTTL:        72 * time.Hour,
			LoanTTL:               30 * 24 * time.Hour,
			MaxActiveReservations: 5,
		}),
	)
	return store, c
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func Test_Relay_CreatesTaskPerRecord(t *testing.T) {
	store, _ := newTestStore(t)
	tasks := newRecordingOutbox()
	ctx := context.Background()

	relay, err := NewRelay(store, tasks, redis.StreamDecrementCopies, "c1", testConfig(), quiet())
	require.NoError(t, err)
	require.NoError(t, store.EnsureGroup(ctx, redis.StreamDecrementCopies, redis.GroupName(redis.StreamDecrementCopies)))

	_, err = store.SeedAvailability(ctx, "b1", "lib1", 3)
	require.NoError(t, err)
	_, err = store.DecrementCopies(ctx, "b1", "lib1")
	require.NoError(t, err)
	_, err = store.DecrementCopies(ctx, "b1", "lib1")
	require.NoError(t, err)

	n, err := relay.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Equal(t, 2, tasks.len())

	for key, task := range tasks.tasks {
		assert.Equal(t, models.TaskDecrementBookCopies, task.taskType)
		assert.Equal(t, "b1", task.payload[models.PayloadBookID])
		assert.Equal(t, "lib1", task.payload[models.PayloadLibraryID])
		assert.NotEmpty(t, task.payload[models.PayloadTimestamp])
		assert.Equal(t, "DECREMENT_BOOK_COPIES:"+task.payload[models.PayloadEventID], key)
	}

	n, err = relay.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func Test_Relay_KeepsRecordPendingWhenOutboxFails(t *testing.T) {
	store, _ := newTestStore(t)
	tasks := newRecordingOutbox()
	tasks.err = errors.New("firestore unavailable")
	ctx := context.Background()

	relay, err := NewRelay(store, tasks, redis.StreamCompletedLoans, "c1", testConfig(), quiet())
	require.NoError(t, err)
	require.NoError(t, store.EnsureGroup(ctx, redis.StreamCompletedLoans, redis.GroupName(redis.StreamCompletedLoans)))

	id, err := store.Publish(ctx, redis.StreamCompletedLoans, map[string]string{
		"userId": "u1", "bookId": "b1", "libraryId": "lib1", "timestamp": "1709287200000",
	})
	require.NoError(t, err)

	_, err = relay.Poll(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, tasks.len())

	tasks.err = nil
	n, err := relay.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, ok := tasks.tasks["ADD_READ_BOOK:"+id]
	require.True(t, ok)
	assert.Equal(t, id, task.payload[models.PayloadEventID])
	assert.Equal(t, "u1", task.payload[models.PayloadUserID])
}

func Test_Relay_DropsMalformedRecord(t *testing.T) {
	store, _ := newTestStore(t)
	tasks := newRecordingOutbox()
	ctx := context.Background()

	relay, err := NewRelay(store, tasks, redis.StreamAddLibrary, "c1", testConfig(), quiet())
	require.NoError(t, err)
	require.NoError(t, store.EnsureGroup(ctx, redis.StreamAddLibrary, redis.GroupName(redis.StreamAddLibrary)))

	_, err = store.Client().XAdd(ctx, &goredis.XAddArgs{
		Stream: redis.StreamAddLibrary,
		Values: map[string]interface{}{"data": "{not json"},
	}).Result()
	require.NoError(t, err)
	require.NoError(t, store.AddBranchEntry(ctx, "b1", "lib2", 4))

	n, err := relay.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Equal(t, 1, tasks.len())
	for _, task := range tasks.tasks {
		assert.Equal(t, "4", task.payload[models.PayloadInitialValue])
	}
}

func Test_Relay_ReclaimsFromDeadConsumer(t *testing.T) {
	store, _ := newTestStore(t)
	tasks := newRecordingOutbox()
	ctx := context.Background()
	stream := redis.StreamIncrementCopies
	group := redis.GroupName(stream)

	require.NoError(t, store.EnsureGroup(ctx, stream, group))
	_, err := store.Publish(ctx, stream, map[string]string{"bookId": "b1", "libraryId": "lib1"})
	require.NoError(t, err)

	delivered, err := store.ReadGroup(ctx, stream, group, "dead", 10)
	require.NoError(t, err)
	require.Len(t, delivered, 1)

	cfg := testConfig()
	cfg.RelayReclaimIdle = time.Nanosecond
	relay, err := NewRelay(store, tasks, stream, "alive", cfg, quiet())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	n, err := relay.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, tasks.len())
}

func Test_NewRelays_OnePerStream(t *testing.T) {
	store, _ := newTestStore(t)
	relays, err := NewRelays(store, newRecordingOutbox(), ConsumerName(), testConfig(), quiet())
	require.NoError(t, err)
	assert.Len(t, relays, len(redis.Streams))

	_, err = NewRelay(store, newRecordingOutbox(), "stream:unknown", "c1", testConfig())
	assert.Error(t, err)
}

func Test_Relay_RunStopsOnCancel(t *testing.T) {
	store, _ := newTestStore(t)
	tasks := newRecordingOutbox()
	relay, err := NewRelay(store, tasks, redis.StreamRemoveLibrary, "c1", testConfig(), quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	_, err = store.Publish(context.Background(), redis.StreamRemoveLibrary, map[string]string{"bookId": "b1", "libraryId": "lib1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return tasks.len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func Test_ReservationSweeper(t *testing.T) {
	store, c := newTestStore(t)
	tasks := newRecordingOutbox()
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	sweeper, err := NewReservationSweeper(store, tasks, testConfig(), WithClock(c.Now), WithMeter(provider.Meter("test")), quiet())
	require.NoError(t, err)

	_, err = store.SeedAvailability(ctx, "b1", "lib1", 2)
	require.NoError(t, err)
	r, err := store.Reserve(ctx, "u1", "b1", "lib1", "Dune", "Central")
	require.NoError(t, err)

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	c.Advance(72*time.Hour + time.Second)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Equal(t, 1, tasks.len())
	for key, task := range tasks.tasks {
		assert.Contains(t, key, "RELEASE_RESERVATION:")
		assert.Equal(t, models.TaskReleaseReservation, task.taskType)
		assert.Equal(t, models.EventExpiredReservation, task.payload[models.PayloadEventType])
		assert.Equal(t, "u1", task.payload[models.PayloadUserID])
		assert.Equal(t, strconv.FormatInt(r.ExpiresAt.UnixMilli(), 10), task.payload[models.PayloadExpiresAt])
	}

	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func Test_LoanSweeper_LeavesEntryWhenOutboxFails(t *testing.T) {
	store, c := newTestStore(t)
	tasks := newRecordingOutbox()
	ctx := context.Background()

	sweeper, err := NewLoanSweeper(store, tasks, testConfig(), WithClock(c.Now), quiet())
	require.NoError(t, err)

	_, err = store.SeedAvailability(ctx, "b1", "lib1", 1)
	require.NoError(t, err)
	_, err = store.Reserve(ctx, "u1", "b1", "lib1", "Dune", "Central")
	require.NoError(t, err)
	_, err = store.MarkAsLoan(ctx, "lib1", "u1", "b1")
	require.NoError(t, err)

	c.Advance(31 * 24 * time.Hour)
	tasks.err = errors.New("unavailable")
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	due, err := store.DueLoans(ctx, c.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	tasks.err = nil
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	for _, task := range tasks.tasks {
		assert.Equal(t, models.TaskMarkLoanOverdue, task.taskType)
		assert.Equal(t, models.EventExpiredLoan, task.payload[models.PayloadEventType])
	}

	loans, err := store.ListLoans(ctx, "lib1")
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}
