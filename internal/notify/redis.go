package notify

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"wagering_service/internal/pkg/redisbus"
)

const publishTimeout = time.Second

// RedisPublisher publishes balance changes as JSON on a Redis channel for
// consumers in other processes.
type RedisPublisher struct {
	bus     *redisbus.TypedPubSub[BalanceChanged]
	channel string
}

func NewRedisPublisher(client goredis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{
		bus:     redisbus.NewTypedPubSub[BalanceChanged](client),
		channel: channel,
	}
}

func (p *RedisPublisher) BalanceChanged(ctx context.Context, ev BalanceChanged) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.bus.Publish(ctx, p.channel, ev); err != nil {
		log.Warn().Err(err).Str("player_id", ev.PlayerID).Msg("balance notification publish failed")
	}
}
