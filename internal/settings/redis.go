package settings

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"wagering_service/internal/pkg/redisbus"
)

type ChangeMessage struct {
	Origin    string    `json:"origin"`
	ChangedAt time.Time `json:"changed_at"`
}

// RedisSync keeps the settings caches of several processes coherent.
type RedisSync struct {
	bus     *redisbus.TypedPubSub[ChangeMessage]
	channel string
	origin  string
}

func NewRedisSync(client goredis.UniversalClient, channel string) *RedisSync {
	return &RedisSync{
		bus:     redisbus.NewTypedPubSub[ChangeMessage](client),
		channel: channel,
		origin:  uuid.NewString(),
	}
}

func (r *RedisSync) BroadcastChange(ctx context.Context) error {
	return r.bus.Publish(ctx, r.channel, ChangeMessage{Origin: r.origin, ChangedAt: time.Now().UTC()})
}

// Watch invalidates p whenever another process reports a change. It blocks
// until ctx is done.
func (r *RedisSync) Watch(ctx context.Context, p *Provider, ready chan<- struct{}) error {
	return r.bus.Subscribe(ctx, r.channel, ready, func(msg ChangeMessage) {
		if msg.Origin == r.origin {
			return
		}
		p.Invalidate()
		log.Info().Str("origin", msg.Origin).Msg("platform settings invalidated by peer")
	})
}
