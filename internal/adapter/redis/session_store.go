package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/serverlist/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

type SessionStore struct {
	rdb *goredis.Client
}

var _ domain.SessionStore = (*SessionStore)(nil)

func NewSessionStore(rdb *goredis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *SessionStore) Save(ctx context.Context, sessionID string, ident domain.Identity, ttl time.Duration) error {
	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load returns nil for unknown or expired sessions.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*domain.Identity, error) {
	data, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var ident domain.Identity
	if err := json.Unmarshal(data, &ident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &ident, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
