package events

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"todo-api/domain"
)

// RedisSink publishes changes on a Redis pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if client == nil {
		panic("events.NewRedisSink: redis client is nil")
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Send(ctx context.Context, ch domain.Change) error {
	data, err := sonic.Marshal(ch)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}
