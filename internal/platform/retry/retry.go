// Package retry waits out backing services that are still starting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // give up and return the error
	Retry               // back off and try again
)

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	// MaxBackoff caps the doubling. Zero means uncapped.
	MaxBackoff time.Duration
	OnRetry    func(attempt int, err error, backoff time.Duration)

	// Clock drives the backoff waits. Nil means the real clock.
	Clock clockwork.Clock
}

// Startup covers a container orchestrator bringing Mongo, Postgres and Redis
// up next to the server: roughly half a minute in total.
var Startup = Policy{
	MaxAttempts:    8,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     8 * time.Second,
}

// PermanentError marks a failure that retrying cannot fix, such as a malformed
// connection URL or rejected credentials.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do stops on it. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return err
	}
	return &PermanentError{Err: err}
}

// UnlessCanceled retries every error except permanent ones, context
// cancellation and deadline expiry.
func UnlessCanceled(err error) Action {
	var perm *PermanentError
	switch {
	case errors.As(err, &perm):
		return Stop
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Stop
	}
	return Retry
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, errors.New("retry policy needs at least one attempt")
	}

	backoff := p.InitialBackoff
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		if classify(err) == Stop {
			return zero, Permanent(err)
		}
		if attempt == p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-clock.After(backoff):
			backoff = next(backoff, p.MaxBackoff)
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

func next(backoff, limit time.Duration) time.Duration {
	backoff *= 2
	if limit > 0 && backoff > limit {
		return limit
	}
	return backoff
}
