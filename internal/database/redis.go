package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// ConnectRedis returns a client for url, or nil when url is empty.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.In("redis").Wrapf(err, "parse url")
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.In("redis").Wrapf(err, "ping")
	}
	return client, nil
}
