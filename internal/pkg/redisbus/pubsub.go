// Package redisbus carries JSON messages over Redis pub/sub channels.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type TypedPubSub[T any] struct {
	client goredis.UniversalClient
}

func NewTypedPubSub[T any](client goredis.UniversalClient) *TypedPubSub[T] {
	return &TypedPubSub[T]{client: client}
}

func (p *TypedPubSub[T]) Publish(ctx context.Context, channel string, msg T) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal pubsub payload: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Subscribe blocks, handing every decoded message to handler until ctx is
// done. ready, when non-nil, is closed once the subscription is live.
func (p *TypedPubSub[T]) Subscribe(ctx context.Context, channel string, ready chan<- struct{}, handler func(T)) error {
	sub := p.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var payload T
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable pubsub message")
				continue
			}
			handler(payload)
		}
	}
}

// NewClient returns nil when addr is empty so callers can treat Redis as
// optional.
func NewClient(addr, password string, db int) *goredis.Client {
	if addr == "" {
		return nil
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
