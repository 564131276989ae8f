package uploadqueue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// noopWaker is the zero-configuration fallback: Wait always blocks for the
// full timeout, so the consumer loop degrades to the blind 2s poll spec
// §4.7 describes when no Redis client is configured.
type noopWaker struct{}

func (noopWaker) Notify(context.Context) error                       { return nil }
func (noopWaker) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
func (noopWaker) Close() error { return nil }

// RedisWaker replaces the blind poll with a Redis-streams wake
// notification: Enqueue XADDs an entry to wakeStreamName, and the
// consumer's Wait blocks on XREADGROUP until an entry arrives or timeout
// elapses, XACKing whatever it reads. Built against
// github.com/redis/go-redis/v9's Streams API because the only Redis
// double in this repository, internal/testsupport/redisstub, implements
// streams and consumer groups rather than true PUBLISH/SUBSCRIBE.
type RedisWaker struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisWaker constructs a RedisWaker and idempotently creates its
// consumer group, tolerating a group that already exists (BUSYGROUP).
func NewRedisWaker(ctx context.Context, client *redis.Client, logger *slog.Logger) (*RedisWaker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &RedisWaker{client: client, logger: logger}
	err := client.XGroupCreateMkStream(ctx, wakeStreamName, wakeGroupName, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, err
	}
	return w, nil
}

// Notify appends a wake entry to the stream. Enqueue calls this after
// persisting a task's new WAITING_UPLOAD status so a blocked consumer
// picks it up immediately instead of waiting out the poll interval.
func (w *RedisWaker) Notify(ctx context.Context) error {
	return w.client.XAdd(ctx, &redis.XAddArgs{
		Stream: wakeStreamName,
		Values: map[string]interface{}{"woken": "1"},
	}).Err()
}

// Wait blocks until a wake entry arrives or timeout elapses, ack'ing
// anything it consumes. A Redis error degrades to a plain timer sleep
// rather than busy-looping the consumer on a broken connection.
func (w *RedisWaker) Wait(ctx context.Context, timeout time.Duration) error {
	res, err := w.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    wakeGroupName,
		Consumer: wakeConsumerTag,
		Streams:  []string{wakeStreamName, ">"},
		Count:    16,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		w.logger.Warn("uploadqueue: redis wake wait failed, falling back to timer", "error", err)
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	var ids []string
	for _, stream := range res {
		for _, msg := range stream.Messages {
			ids = append(ids, msg.ID)
		}
	}
	if len(ids) > 0 {
		if ackErr := w.client.XAck(ctx, wakeStreamName, wakeGroupName, ids...).Err(); ackErr != nil {
			w.logger.Warn("uploadqueue: ack wake entries failed", "error", ackErr)
		}
	}
	return nil
}

// Close releases the underlying Redis client.
func (w *RedisWaker) Close() error {
	return w.client.Close()
}
