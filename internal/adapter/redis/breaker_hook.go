package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/serverlist/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	breakerFailureThreshold = 5
	breakerOpenDuration     = 30 * time.Second
)

// BreakerHook fails commands fast while Redis is unreachable. Session lookups then
// degrade to anonymous instead of queueing behind dial timeouts.
type BreakerHook struct {
	breaker *gobreaker.CircuitBreaker
}

var _ goredis.Hook = (*BreakerHook)(nil)

// NewBreakerHook creates the hook. m may be nil.
func NewBreakerHook(m *metrics.StoreMetrics) *BreakerHook {
	return &BreakerHook{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "redis",
			Timeout: breakerOpenDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
				if m != nil {
					m.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
				}
			},
		}),
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State reports the breaker state.
func (h *BreakerHook) State() gobreaker.State {
	return h.breaker.State()
}

func (h *BreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return next
}

func (h *BreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		return h.execute(func() error { return next(ctx, cmd) })
	}
}

func (h *BreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		return h.execute(func() error { return next(ctx, cmds) })
	}
}

// execute counts redis.Nil as success; a miss proves the server is answering.
func (h *BreakerHook) execute(op func() error) error {
	var opErr error
	_, err := h.breaker.Execute(func() (any, error) {
		opErr = op()
		if errors.Is(opErr, goredis.Nil) {
			return nil, nil
		}
		return nil, opErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	return opErr
}
