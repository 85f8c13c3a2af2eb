package domain

import (
	"context"
	"time"
)

// Identity is an authenticated user as reported by the identity provider.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// AuthState is the authentication state of one browser session. A nil Identity means anonymous.
type AuthState struct {
	SessionID string    `json:"session_id"`
	Identity  *Identity `json:"identity,omitempty"`
}

// Present reports whether the session carries a signed-in identity.
func (s AuthState) Present() bool {
	return s.Identity != nil
}

// AuthStateSource delivers the initial auth state and every later change for a session.
// Delivery keeps only the latest value; intermediate states may be skipped.
type AuthStateSource interface {
	OnStateChange(ctx context.Context, sessionID string, fn func(AuthState)) (unsubscribe func(), err error)
}

// AuthStatePublisher announces a session's new auth state to every subscriber, on any instance.
type AuthStatePublisher interface {
	PublishAuthState(ctx context.Context, state AuthState) error
}

// SessionStore persists the identity bound to a session ID.
type SessionStore interface {
	Save(ctx context.Context, sessionID string, ident Identity, ttl time.Duration) error
	Load(ctx context.Context, sessionID string) (*Identity, error)
	Delete(ctx context.Context, sessionID string) error
}
