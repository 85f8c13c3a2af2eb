package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/serverlist/internal/broadcast"
	"github.com/pscheid92/serverlist/internal/domain"
	"github.com/pscheid92/serverlist/internal/platform/crypto"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 256
	maxEmailLen    = 254
)

type subscriber interface {
	Subscribe(sessionID string, fn func(domain.AuthState)) (*broadcast.Subscription, error)
}

type Provider struct {
	accounts   domain.AccountRepository
	sessions   domain.SessionStore
	publisher  domain.AuthStatePublisher
	subscriber subscriber
	hasher     crypto.PasswordHasher
	sessionTTL time.Duration
	newID      func() string
}

var _ domain.AuthStateSource = (*Provider)(nil)

func NewProvider(
	accounts domain.AccountRepository,
	sessions domain.SessionStore,
	publisher domain.AuthStatePublisher,
	subscriber subscriber,
	hasher crypto.PasswordHasher,
	sessionTTL time.Duration,
) *Provider {
	return &Provider{
		accounts:   accounts,
		sessions:   sessions,
		publisher:  publisher,
		subscriber: subscriber,
		hasher:     hasher,
		sessionTTL: sessionTTL,
		newID:      uuid.NewString,
	}
}

// NewSessionID returns a fresh anonymous session ID.
func (p *Provider) NewSessionID() string {
	return p.newID()
}

// Register creates an account and signs it in.
func (p *Provider) Register(ctx context.Context, sessionID, email, password string) (string, domain.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", domain.Identity{}, err
	}
	if len(password) < minPasswordLen {
		return "", domain.Identity{}, &domain.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}
	if len(password) > maxPasswordLen {
		return "", domain.Identity{}, &domain.ValidationError{Field: "password", Reason: fmt.Sprintf("exceeds %d characters", maxPasswordLen)}
	}

	hash, salt, err := p.hasher.Hash(password)
	if err != nil {
		return "", domain.Identity{}, fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := p.accounts.Create(ctx, email, hash, salt)
	if err != nil {
		return "", domain.Identity{}, err
	}
	slog.InfoContext(ctx, "Account registered", "account_id", account.ID)

	ident := domain.Identity{UID: account.ID.String(), Email: account.Email}
	newSID, err := p.startSession(ctx, sessionID, ident)
	if err != nil {
		return "", domain.Identity{}, err
	}
	return newSID, ident, nil
}

// SignIn verifies credentials and binds the identity to a new session ID.
// Unknown email and wrong password are indistinguishable to the caller.
func (p *Provider) SignIn(ctx context.Context, sessionID, email, password string) (string, domain.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", domain.Identity{}, domain.ErrInvalidCredentials
	}

	account, err := p.accounts.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return "", domain.Identity{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", domain.Identity{}, err
	}

	if !p.hasher.Verify(password, account.PasswordHash, account.PasswordSalt) {
		slog.InfoContext(ctx, "Sign-in rejected", "account_id", account.ID)
		return "", domain.Identity{}, domain.ErrInvalidCredentials
	}

	ident := domain.Identity{UID: account.ID.String(), Email: account.Email}
	newSID, err := p.startSession(ctx, sessionID, ident)
	if err != nil {
		return "", domain.Identity{}, err
	}
	return newSID, ident, nil
}

// startSession rotates the session ID so a pre-login ID never carries an identity.
// Pages still subscribed under the old ID are told about the sign-in as well.
func (p *Provider) startSession(ctx context.Context, oldSID string, ident domain.Identity) (string, error) {
	newSID := p.newID()
	if err := p.sessions.Save(ctx, newSID, ident, p.sessionTTL); err != nil {
		return "", err
	}

	if oldSID != "" && oldSID != newSID {
		if err := p.sessions.Delete(ctx, oldSID); err != nil {
			slog.WarnContext(ctx, "Failed to drop previous session", "error", err)
		}
		p.publish(ctx, domain.AuthState{SessionID: oldSID, Identity: &ident})
	}
	p.publish(ctx, domain.AuthState{SessionID: newSID, Identity: &ident})
	return newSID, nil
}

// SignOut ends the session. Signing out an unknown session is not an error.
func (p *Provider) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := p.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	p.publish(ctx, domain.AuthState{SessionID: sessionID})
	return nil
}

// Current returns the identity bound to sessionID, or nil.
func (p *Provider) Current(ctx context.Context, sessionID string) (*domain.Identity, error) {
	if sessionID == "" {
		return nil, nil
	}
	return p.sessions.Load(ctx, sessionID)
}

// OnStateChange subscribes fn to the session's auth state. The current state is
// delivered first unless a change was already pushed in the meantime.
func (p *Provider) OnStateChange(ctx context.Context, sessionID string, fn func(domain.AuthState)) (func(), error) {
	sub, err := p.subscriber.Subscribe(sessionID, fn)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to auth state: %w", err)
	}

	ident, err := p.Current(ctx, sessionID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	if err := sub.Seed(domain.AuthState{SessionID: sessionID, Identity: ident}); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to seed auth state: %w", err)
	}
	return sub.Close, nil
}

// publish failures are logged; the session record is already authoritative.
func (p *Provider) publish(ctx context.Context, state domain.AuthState) {
	if err := p.publisher.PublishAuthState(ctx, state); err != nil {
		slog.WarnContext(ctx, "Failed to publish auth state", "session_id", state.SessionID, "error", err)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &domain.ValidationError{Field: "email", Reason: "cannot be empty"}
	}
	if len(email) > maxEmailLen {
		return "", &domain.ValidationError{Field: "email", Reason: fmt.Sprintf("exceeds %d characters", maxEmailLen)}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &domain.ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return email, nil
}
