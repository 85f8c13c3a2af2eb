package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/serverlist/internal/platform/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
}

func alwaysRetry(error) retry.Action { return retry.Retry }

// flaky fails n times with err, then returns val.
func flaky[T any](n int, err error, val T) (retry.Operation[T], *int) {
	calls := 0
	return func() (T, error) {
		calls++
		if calls <= n {
			var zero T
			return zero, err
		}
		return val, nil
	}, &calls
}

func TestDo_ReturnsValueAfterTransientFailures(t *testing.T) {
	op, calls := flaky(2, errors.New("connection refused"), 42)

	val, err := retry.Do(context.Background(), fastPolicy, retry.UnlessCanceled, op)

	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, *calls)
}

func TestDo_ExhaustedAttempts(t *testing.T) {
	underlying := errors.New("connection refused")
	op, calls := flaky(10, underlying, struct{}{})

	_, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, op)

	require.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, fastPolicy.MaxAttempts, *calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	underlying := errors.New("password authentication failed")
	op, calls := flaky(10, fmt.Errorf("connect: %w", retry.Permanent(underlying)), struct{}{})

	_, err := retry.Do(context.Background(), fastPolicy, retry.UnlessCanceled, op)

	var perm *retry.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.ErrorIs(t, err, underlying)
	assert.Equal(t, 1, *calls)
}

func TestDo_ClassifierStopWrapsAsPermanent(t *testing.T) {
	underlying := errors.New("bad url")
	op, calls := flaky(10, underlying, struct{}{})

	_, err := retry.Do(context.Background(), fastPolicy, func(error) retry.Action { return retry.Stop }, op)

	var perm *retry.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.ErrorIs(t, err, underlying)
	assert.Equal(t, 1, *calls)
}

func TestDo_BackoffDoublesUpToCap(t *testing.T) {
	var backoffs []time.Duration
	p := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     3 * time.Millisecond,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			backoffs = append(backoffs, backoff)
		},
	}
	op, _ := flaky(10, errors.New("down"), struct{}{})

	_, _ = retry.Do(context.Background(), p, alwaysRetry, op)

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 3 * time.Millisecond}, backoffs)
}

func TestDo_OnRetryNotCalledOnLastAttempt(t *testing.T) {
	var attempts []int
	p := fastPolicy
	p.OnRetry = func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}
	op, _ := flaky(10, errors.New("down"), struct{}{})

	_, _ = retry.Do(context.Background(), p, alwaysRetry, op)

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ContextCancellationDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxAttempts: 3, InitialBackoff: 10 * time.Second}

	calls := 0
	_, err := retry.Do(ctx, p, alwaysRetry, func() (struct{}, error) {
		calls++
		cancel()
		return struct{}{}, errors.New("down")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_RejectsEmptyPolicy(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), retry.Policy{}, alwaysRetry, func() (int, error) {
		calls++
		return 1, nil
	})

	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestDo_FakeClockDrivesBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := retry.Policy{MaxAttempts: 2, InitialBackoff: time.Minute, Clock: clock}
	op, _ := flaky(1, errors.New("down"), "ok")

	done := make(chan error, 1)
	go func() {
		_, err := retry.Do(context.Background(), p, alwaysRetry, op)
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Minute)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not resume after clock advanced")
	}
}

func TestUnlessCanceled(t *testing.T) {
	assert.Equal(t, retry.Retry, retry.UnlessCanceled(errors.New("connection refused")))
	assert.Equal(t, retry.Stop, retry.UnlessCanceled(context.Canceled))
	assert.Equal(t, retry.Stop, retry.UnlessCanceled(fmt.Errorf("ping: %w", context.DeadlineExceeded)))
	assert.Equal(t, retry.Stop, retry.UnlessCanceled(fmt.Errorf("parse: %w", retry.Permanent(errors.New("bad url")))))
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, retry.Permanent(nil))

	once := retry.Permanent(errors.New("x"))
	assert.Same(t, once, retry.Permanent(once), "already permanent errors are not rewrapped")
}
