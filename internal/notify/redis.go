package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type RedisPublisher struct {
	Client  redisClient
	Channel string
}

func NewRedisPublisher(client redisClient, channel string) *RedisPublisher {
	return &RedisPublisher{Client: client, Channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, _ string, payload []byte) error {
	return p.Client.Publish(ctx, p.Channel, payload).Err()
}

// Connect and ping redis
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
