package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/weftlabs/substrate/pkg/contracts"
)

// RedisCascade publishes appended events on a per-basket Redis channel so
// downstream consumers (reflection computation, notifications) can react
// without polling the feed. Only wired when cascade_events_enabled resolves
// true for the workspace.
type RedisCascade struct {
	client  *redis.Client
	channel string
}

// NewRedisCascade creates a publisher. channelPrefix defaults to "timeline".
func NewRedisCascade(client *redis.Client, channelPrefix string) *RedisCascade {
	if channelPrefix == "" {
		channelPrefix = "timeline"
	}
	return &RedisCascade{client: client, channel: channelPrefix}
}

func (c *RedisCascade) Publish(ctx context.Context, ev contracts.TimelineEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode cascade event: %w", err)
	}
	return c.client.Publish(ctx, c.channel+":"+ev.BasketID, raw).Err()
}
