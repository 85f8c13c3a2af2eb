package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account is a registered user of the identity provider.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	PasswordSalt []byte
	CreatedAt    time.Time
}

type AccountRepository interface {
	Create(ctx context.Context, email string, hash, salt []byte) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
}
