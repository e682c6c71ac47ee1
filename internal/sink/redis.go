package sink

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisSink publishes envelopes to a Redis pub/sub channel.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
	owned   bool
}

// NewRedisSink publishes on channel through client. The caller keeps
// ownership of client.
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, channel string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis sink: ping %s: %w", addr, err)
	}
	return &RedisSink{client: client, channel: channel, owned: true}, nil
}

// Send implements Sink.
func (s *RedisSink) Send(ctx context.Context, env Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("redis sink: encode: %w", err)
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}

// Close closes the client if DialRedis created it.
func (s *RedisSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
