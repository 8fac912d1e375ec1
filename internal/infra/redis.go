package infra

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient returns the client behind idempotency keys and rate limits,
// named clientName on the server.
func NewRedisClient(ctx context.Context, url, clientName string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.ClientName = clientName

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewTaskQueue returns the asynq client that schedules link expiry notices on
// the same Redis, plus the connection options its worker needs.
func NewTaskQueue(url string) (*asynq.Client, asynq.RedisConnOpt, error) {
	if url == "" {
		return nil, nil, fmt.Errorf("redis url is required")
	}
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url for task queue: %w", err)
	}
	return asynq.NewClient(opt), opt, nil
}
