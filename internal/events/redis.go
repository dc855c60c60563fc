package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sitebot/internal/logging"
)

const subscriberBuffer = 16

// RedisBus fans events out over Redis pub/sub so every API node sees the
// transitions made by any worker.
type RedisBus struct {
	client *redisv9.Client
	prefix string
	logger *zap.Logger
}

func NewRedisBus(client *redisv9.Client, prefix string, logger *zap.Logger) *RedisBus {
	if prefix == "" {
		prefix = "sitebot"
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		logger: logger.Named("events"),
	}
}

func (b *RedisBus) Channel(siteID string) string {
	return fmt.Sprintf("%s:site:%s:events", b.prefix, siteID)
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("marshal event failed", zap.Error(err))
		return
	}
	if err := b.client.Publish(context.WithoutCancel(ctx), b.Channel(ev.SiteID), payload).Err(); err != nil {
		b.logger.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("site_id", ev.SiteID),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func (b *RedisBus) Subscribe(ctx context.Context, siteID string) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, b.Channel(siteID))
	// wait for the subscription to be confirmed so no event published after
	// Subscribe returns is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("drop undecodable event", zap.String("channel", msg.Channel))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
