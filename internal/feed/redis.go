package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vidhive/vidhive/pkg/models"
)

const subscriberBuffer = 64

// RedisFeed implements Feed over Redis pub/sub, one channel per tenant.
// Redis pub/sub is fire-and-forget per connected subscriber, so the
// at-least-once property holds for connected consumers only; disconnected
// consumers re-synchronize via a baseline fetch, never via replay.
type RedisFeed struct {
	client *redis.Client
}

// NewRedisFeed creates a RedisFeed from a Redis URL.
func NewRedisFeed(redisURL string) (*RedisFeed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisFeed{client: redis.NewClient(opts)}, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}

func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

func channelFor(tenantID uuid.UUID) string {
	return fmt.Sprintf("feed:videos:%s", tenantID)
}

func (f *RedisFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	err = f.client.Publish(ctx, channelFor(event.TenantID), payload).Err()
	if err != nil {
		// One retry on transient failure; duplicates are fine, consumers
		// dedup by id and version.
		if err = f.client.Publish(ctx, channelFor(event.TenantID), payload).Err(); err != nil {
			return fmt.Errorf("publish change event: %w", err)
		}
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, tenantID uuid.UUID) (<-chan models.ChangeEvent, func(), error) {
	sub := f.client.Subscribe(ctx, channelFor(tenantID))

	// Force the subscription onto the wire before we report success, so a
	// caller that fetches baseline state after subscribing cannot miss
	// events published in between.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan models.ChangeEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var event models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("dropping malformed change event", "error", err, "tenant_id", tenantID)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() { sub.Close() }
	return out, unsubscribe, nil
}
