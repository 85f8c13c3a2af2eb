package redis

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/serverlist/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnRefused = errors.New("connection refused")

func TestMetricsHook_ProcessHook(t *testing.T) {
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())
	hook := NewMetricsHook(m)
	ctx := context.Background()

	results := []error{nil, goredis.Nil, errConnRefused}
	for _, want := range results {
		process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return want })
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "session:abc"))
		assert.Equal(t, want, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpErrors.WithLabelValues("redis", "get")), "a miss is not an error")
	assert.Equal(t, 1, testutil.CollectAndCount(m.OpDuration))
}

func TestMetricsHook_PipelineAndDial(t *testing.T) {
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())
	hook := NewMetricsHook(m)
	ctx := context.Background()

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return errConnRefused })
	require.Error(t, pipeline(ctx, nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpErrors.WithLabelValues("redis", "pipeline")))

	dial := hook.DialHook(func(context.Context, string, string) (net.Conn, error) { return nil, errConnRefused })
	_, err := dial(ctx, "tcp", "localhost:6379")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionErrors.WithLabelValues("redis")))
}

func TestMetricsHook_NilMetrics(t *testing.T) {
	hook := NewMetricsHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return errConnRefused })
	assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "k")), errConnRefused)
}

func TestBreakerHook_OpensAfterConsecutiveFailures(t *testing.T) {
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())
	hook := NewBreakerHook(m)
	ctx := context.Background()

	var calls int
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		calls++
		return errConnRefused
	})

	for range breakerFailureThreshold {
		assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "k")), errConnRefused)
	}
	assert.Equal(t, gobreaker.StateOpen, hook.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("redis")))

	err := process(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, breakerFailureThreshold, calls, "open breaker does not reach Redis")
}

func TestBreakerHook_MissesKeepBreakerClosed(t *testing.T) {
	hook := NewBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range breakerFailureThreshold * 2 {
		assert.ErrorIs(t, process(ctx, goredis.NewStringCmd(ctx, "get", "k")), goredis.Nil)
	}
	assert.Equal(t, gobreaker.StateClosed, hook.State())
}
