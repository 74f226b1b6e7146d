package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "bloodbank:alerts"

// RedisSink publishes alerts on a Redis pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Notify(ctx context.Context, subject, body string, recipients []string) error {
	payload, err := newMessage(subject, body, recipients).encode()
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}
	return nil
}
