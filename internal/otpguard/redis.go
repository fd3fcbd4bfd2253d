package otpguard

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard shares the cooldown window across processes using SET NX with
// a TTL. Redis being unreachable fails open: duplicate suppression is a
// nicety, availability of the reset flow is not.
type RedisGuard struct {
	client   redis.UniversalClient
	cooldown time.Duration
	prefix   string
}

// NewRedisGuard creates a guard backed by the given client. The prefix
// namespaces guard keys; empty defaults to "schoolauth:otpguard:".
func NewRedisGuard(client redis.UniversalClient, cooldown time.Duration, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = "schoolauth:otpguard:"
	}
	return &RedisGuard{
		client:   client,
		cooldown: cooldown,
		prefix:   prefix,
	}
}

func (g *RedisGuard) Allow(ctx context.Context, key string) bool {
	if g == nil || g.client == nil || g.cooldown <= 0 {
		return true
	}

	ok, err := g.client.SetNX(ctx, g.prefix+key, 1, g.cooldown).Result()
	if err != nil {
		return true
	}
	return ok
}
