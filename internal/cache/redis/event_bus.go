package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/corvales/nftmarketd/internal/domain"
)

// EventBus implements domain.EventBus using Redis Pub/Sub for live
// subscribers and a capped Redis stream for durable, ordered delivery
// to indexers.
type EventBus struct {
	rdb       *redis.Client
	streamMax int64
}

// NewEventBus creates an EventBus backed by the given Client. maxLen
// caps the durable stream via XADD MAXLEN ~; zero means 10,000.
func NewEventBus(c *Client, maxLen int64) *EventBus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &EventBus{rdb: c.Underlying(), streamMax: maxLen}
}

// PublishEvent implements domain.EventBus. The envelope goes to the
// event's pub/sub channel and is appended to the durable stream.
func (b *EventBus) PublishEvent(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	if err := b.rdb.Publish(ctx, event.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", event.Channel(), err)
	}

	args := &redis.XAddArgs{
		Stream: domain.EventStream,
		MaxLen: b.streamMax,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(event.Type),
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", domain.EventStream, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription on a channel and returns a
// read-only byte channel. The subscription closes with the context.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := b.rdb.Subscribe(ctx, channel)

	// Verify the subscription is established.
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

// StreamRead reads up to count entries from the durable event stream
// after lastID. Use "0" to read from the beginning. It returns an empty
// slice when nothing is available.
func (b *EventBus) StreamRead(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{domain.EventStream, lastID},
		Count:   int64(count),
		Block:   -1,
	}

	results, err := b.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", domain.EventStream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			messages = append(messages, domain.StreamMessage{
				ID:      msg.ID,
				Payload: data,
			})
		}
	}

	return messages, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
