package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

const (
	// ChannelBatch carries every finished batch report.
	ChannelBatch = "ch:batch"
	// StreamBatches keeps the most recent batch reports.
	StreamBatches = "stream:batches"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// BatchBus implements domain.EventBus with Redis Pub/Sub for live delivery and
// Redis Streams for history. It is also a domain.ReportSink that fans each
// batch report out to ChannelBatch and StreamBatches.
type BatchBus struct {
	rdb *redis.Client
}

// NewBatchBus creates a BatchBus backed by the given Client.
func NewBatchBus(c *Client) *BatchBus {
	return &BatchBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (b *BatchBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription. The returned channel is
// closed when ctx is cancelled.
func (b *BatchBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern reports whether channel needs PSubscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends a payload to a Redis stream using XADD with an
// approximate MAXLEN.
func (b *BatchBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

func (b *BatchBus) Name() string { return "redis" }

// Record publishes report to ChannelBatch and appends it to StreamBatches.
func (b *BatchBus) Record(ctx context.Context, report domain.BatchReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: marshal report %s: %w", report.BatchID, err)
	}
	return errors.Join(
		b.Publish(ctx, ChannelBatch, payload),
		b.StreamAppend(ctx, StreamBatches, payload),
	)
}

// ListRecent returns up to limit reports from StreamBatches, newest first.
// Entries that do not decode are skipped.
func (b *BatchBus) ListRecent(ctx context.Context, limit int) ([]domain.BatchReport, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, StreamBatches, "+", "-", int64(limit)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", StreamBatches, err)
	}

	reports := make([]domain.BatchReport, 0, len(msgs))
	for _, msg := range msgs {
		var data []byte
		switch v := msg.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		var r domain.BatchReport
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

var (
	_ domain.EventBus   = (*BatchBus)(nil)
	_ domain.ReportSink = (*BatchBus)(nil)
)
