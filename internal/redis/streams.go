package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// StreamMessage is one relayed stream record.
type StreamMessage struct {
	ID   string
	Data string
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (s *Store) EnsureGroup(ctx context.Context, stream, group string) error {
	err := s.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !goredis.HasErrorPrefix(err, "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup returns up to count records for the consumer. Records delivered earlier but
// never acknowledged come first, then new records.
func (s *Store) ReadGroup(ctx context.Context, stream, group, consumer string, count int) ([]StreamMessage, error) {
	pending, err := s.readGroup(ctx, stream, group, consumer, "0", count)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}
	return s.readGroup(ctx, stream, group, consumer, ">", count)
}

func (s *Store) readGroup(ctx context.Context, stream, group, consumer, start string, count int) ([]StreamMessage, error) {
	res, err := s.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, start},
		Count:    int64(count),
		Block:    -1,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", stream, err)
	}

	var out []StreamMessage
	for _, xs := range res {
		out = append(out, toMessages(xs.Messages)...)
	}
	return out, nil
}

// Reclaim takes over records another consumer left unacknowledged for longer than minIdle.
func (s *Store) Reclaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int) ([]StreamMessage, error) {
	msgs, _, err := s.rdb.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("reclaim %s: %w", stream, err)
	}
	return toMessages(msgs), nil
}

// Ack acknowledges processed records.
func (s *Store) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", stream, err)
	}
	return nil
}

// Publish appends a record with a single data field.
func (s *Store) Publish(ctx context.Context, stream string, fields map[string]string) (string, error) {
	payload, err := encodeEvent(fields)
	if err != nil {
		return "", err
	}
	id, err := s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", stream, err)
	}
	return id, nil
}

func toMessages(in []goredis.XMessage) []StreamMessage {
	out := make([]StreamMessage, 0, len(in))
	for _, m := range in {
		data, _ := m.Values["data"].(string)
		out = append(out, StreamMessage{ID: m.ID, Data: data})
	}
	return out
}
