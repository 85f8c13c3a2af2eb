package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pscheid92/serverlist/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient creates a client from a URL (e.g. "redis://localhost:6379") and verifies it with a ping.
// Hooks run in the order given, outermost first.
func NewClient(ctx context.Context, redisURL string, hooks ...goredis.Hook) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to parse redis URL: %w", err))
	}

	rdb := goredis.NewClient(opts)
	for _, h := range hooks {
		rdb.AddHook(h)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		err = fmt.Errorf("failed to ping redis: %w", err)
		if isAuthError(err) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	slog.Info("Redis connected", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}

func isAuthError(err error) bool {
	var redisErr goredis.Error
	if !errors.As(err, &redisErr) {
		return false
	}
	msg := redisErr.Error()
	return strings.HasPrefix(msg, "WRONGPASS") || strings.HasPrefix(msg, "NOAUTH")
}
