package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps command traffic (transcript cache, job queue, publishes)
// apart from the websocket hub's subscriber connections.
type RedisClients struct {
	Cache  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	cache, err := dialRedis(ctx, opt, "cache")
	if err != nil {
		return nil, err
	}

	// Subscriptions block on reads, so they get their own pool.
	subOpt := *opt
	pubsub, err := dialRedis(ctx, &subOpt, "pubsub")
	if err != nil {
		cache.Close()
		return nil, err
	}
	return &RedisClients{Cache: cache, PubSub: pubsub}, nil
}

func dialRedis(ctx context.Context, opt *redis.Options, role string) (*redis.Client, error) {
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", role, err)
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Cache.Close()
	r.PubSub.Close()
}
