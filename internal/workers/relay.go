package workers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"library-circulation/internal/config"
	"library-circulation/internal/models"
	"library-circulation/internal/redis"
)

// StreamTasks maps each relayed stream to the task type its records become.
var StreamTasks = map[string]models.TaskType{
	redis.StreamDecrementCopies: models.TaskDecrementBookCopies,
	redis.StreamIncrementCopies: models.TaskIncrementBookCopies,
	redis.StreamAddLibrary:      models.TaskAddBranchToBook,
	redis.StreamRemoveLibrary:   models.TaskRemoveBranchFromBook,
	redis.StreamCompletedLoans:  models.TaskAddReadBook,
}

// StreamSource is a consumer-group reader over Redis streams.
type StreamSource interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int) ([]redis.StreamMessage, error)
	Reclaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int) ([]redis.StreamMessage, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// Relay copies records of one stream into outbox tasks. A record is acknowledged only
// after its task exists, so a crash between the two re-delivers it and the
// idempotency key absorbs the duplicate.
type Relay struct {
	source      StreamSource
	tasks       TaskCreator
	stream      string
	group       string
	consumer    string
	taskType    models.TaskType
	batch       int
	interval    time.Duration
	reclaimIdle time.Duration
	opts        options
}

// NewRelay builds the relay for stream. consumer should be unique per process, see
// ConsumerName.
func NewRelay(source StreamSource, tasks TaskCreator, stream, consumer string, cfg config.WorkersConfig, opts ...Option) (*Relay, error) {
	taskType, ok := StreamTasks[stream]
	if !ok {
		return nil, fmt.Errorf("no task type for stream %q", stream)
	}
	return &Relay{
		source:      source,
		tasks:       tasks,
		stream:      stream,
		group:       redis.GroupName(stream),
		consumer:    consumer,
		taskType:    taskType,
		batch:       cfg.RelayBatchSize,
		interval:    cfg.RelayPollInterval,
		reclaimIdle: cfg.RelayReclaimIdle,
		opts:        buildOptions(opts),
	}, nil
}

// NewRelays builds one relay per known stream.
func NewRelays(source StreamSource, tasks TaskCreator, consumer string, cfg config.WorkersConfig, opts ...Option) ([]*Relay, error) {
	relays := make([]*Relay, 0, len(redis.Streams))
	for _, stream := range redis.Streams {
		r, err := NewRelay(source, tasks, stream, consumer, cfg, opts...)
		if err != nil {
			return nil, err
		}
		relays = append(relays, r)
	}
	return relays, nil
}

// ConsumerName returns "<hostname>-<uuid>".
func ConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "relay"
	}
	return host + "-" + uuid.NewString()
}

// Run creates the consumer group and polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.source.EnsureGroup(ctx, r.stream, r.group); err != nil {
		return err
	}

	r.opts.logger.Info("stream relay started", "stream", r.stream, "group", r.group, "consumer", r.consumer)
	every(ctx, r.interval, func(ctx context.Context) {
		if _, err := r.Poll(ctx); err != nil && ctx.Err() == nil {
			r.opts.logger.Error("stream relay poll", "stream", r.stream, "error", err)
		}
	})
	r.opts.logger.Info("stream relay stopped", "stream", r.stream)
	return nil
}

// Poll relays one batch and returns the number of acknowledged records.
func (r *Relay) Poll(ctx context.Context) (int, error) {
	relayed := 0
	if r.reclaimIdle > 0 {
		claimed, err := r.source.Reclaim(ctx, r.stream, r.group, r.consumer, r.reclaimIdle, r.batch)
		if err != nil {
			return 0, err
		}
		if len(claimed) > 0 {
			r.opts.logger.Warn("reclaimed idle stream records", "stream", r.stream, "count", len(claimed))
		}
		n, err := r.relay(ctx, claimed)
		relayed += n
		if err != nil {
			return relayed, err
		}
	}

	msgs, err := r.source.ReadGroup(ctx, r.stream, r.group, r.consumer, r.batch)
	if err != nil {
		return relayed, err
	}
	n, err := r.relay(ctx, msgs)
	return relayed + n, err
}

// relay stops at the first record whose task cannot be created; it stays pending and
// is read again on the next poll.
func (r *Relay) relay(ctx context.Context, msgs []redis.StreamMessage) (int, error) {
	acked := 0
	for _, msg := range msgs {
		payload, err := decodeRecord(msg)
		if err != nil {
			r.opts.logger.Error("dropping malformed stream record",
				"stream", r.stream, "record_id", msg.ID, "data", msg.Data, "error", err)
		} else {
			key := string(r.taskType) + ":" + msg.ID
			if _, _, err := r.tasks.CreateTaskWithKey(ctx, key, r.taskType, payload); err != nil {
				return acked, fmt.Errorf("relay record %s from %s: %w", msg.ID, r.stream, err)
			}
		}

		if err := r.source.Ack(ctx, r.stream, r.group, msg.ID); err != nil {
			return acked, err
		}
		acked++
	}
	return acked, nil
}

func decodeRecord(msg redis.StreamMessage) (map[string]string, error) {
	if msg.Data == "" {
		return nil, fmt.Errorf("record has no data field")
	}
	payload := make(map[string]string)
	if err := jsoniter.ConfigFastest.UnmarshalFromString(msg.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode record data: %w", err)
	}
	payload[models.PayloadEventID] = msg.ID
	return payload, nil
}
