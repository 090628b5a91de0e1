package redis_repository

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/simplexity/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Conn opens a client for cfg and verifies it with PING.
func Conn(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		DialTimeout: cfg.Timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})
	if logger != nil {
		logger.Info("connecting to redis", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	}

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}

	return client, nil
}
