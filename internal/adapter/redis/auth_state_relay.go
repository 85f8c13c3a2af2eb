package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pscheid92/serverlist/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const authStateChannel = "auth:state"

// LocalPublisher delivers a state to this instance's subscribers.
type LocalPublisher interface {
	Publish(state domain.AuthState) error
}

// AuthStateRelay publishes auth-state changes on a Redis channel and feeds every
// message it receives into the local broker, so subscribers on all instances see
// each change, including the ones this instance published.
type AuthStateRelay struct {
	rdb   *goredis.Client
	local LocalPublisher
}

var _ domain.AuthStatePublisher = (*AuthStateRelay)(nil)

func NewAuthStateRelay(rdb *goredis.Client, local LocalPublisher) *AuthStateRelay {
	return &AuthStateRelay{rdb: rdb, local: local}
}

func (r *AuthStateRelay) PublishAuthState(ctx context.Context, state domain.AuthState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal auth state: %w", err)
	}
	if err := r.rdb.Publish(ctx, authStateChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish auth state: %w", err)
	}
	return nil
}

// Start consumes the channel until ctx ends. ready, if non-nil, is closed once the
// subscription is confirmed.
func (r *AuthStateRelay) Start(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.rdb.Subscribe(ctx, authStateChannel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", authStateChannel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return nil
			}
			r.handleMessage(msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *AuthStateRelay) handleMessage(payload string) {
	var state domain.AuthState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		slog.Warn("Malformed auth state message", "error", err)
		return
	}
	if state.SessionID == "" {
		slog.Warn("Auth state message without session ID")
		return
	}

	if err := r.local.Publish(state); err != nil {
		slog.Warn("Failed to relay auth state", "error", err)
	}
}
