package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "pipeline:events:"

// RedisPublisher publishes events on a per-pipeline channel and on a firehose
// channel that gateways can subscribe to.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func Channel(pipelineID string) string {
	return channelPrefix + pipelineID
}

func (p *RedisPublisher) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(event.PipelineID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return p.client.Publish(ctx, channelPrefix+"all", data).Err()
}
