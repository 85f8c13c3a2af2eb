package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/pscheid92/serverlist/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// MetricsHook records every command and pipeline. A cache miss (redis.Nil) is
// not a failure.
type MetricsHook struct {
	metrics *metrics.StoreMetrics
}

var _ goredis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(m *metrics.StoreMetrics) *MetricsHook {
	return &MetricsHook{metrics: m}
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil && h.metrics != nil {
			h.metrics.ConnectionErrors.WithLabelValues("redis").Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.metrics.Observe("redis", cmd.Name(), time.Since(start).Seconds(), err != nil && !errors.Is(err, goredis.Nil))
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.metrics.Observe("redis", "pipeline", time.Since(start).Seconds(), err != nil && !errors.Is(err, goredis.Nil))
		return err
	}
}
