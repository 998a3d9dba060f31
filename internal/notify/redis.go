package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher for channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends one event. Nobody listening is not an error.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// RedisSubscriber receives events from a Redis pub/sub channel. Every
// subscriber sees every event.
type RedisSubscriber struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisSubscriber creates a subscriber for channel.
func NewRedisSubscriber(client *redis.Client, channel string, log zerolog.Logger) *RedisSubscriber {
	return &RedisSubscriber{
		client:  client,
		channel: channel,
		log:     log.With().Str("component", "redis-subscriber").Logger(),
	}
}

// Subscribe delivers events until ctx is done.
func (s *RedisSubscriber) Subscribe(ctx context.Context, fn func(Event)) error {
	ps := s.client.Subscribe(ctx, s.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, err := decode([]byte(msg.Payload))
			if err != nil {
				s.log.Warn().Err(err).Msg("skipping malformed event")
				continue
			}
			fn(e)
		}
	}
}
