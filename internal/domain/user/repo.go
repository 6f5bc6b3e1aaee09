package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists user accounts and password-reset tokens.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	CreateResetToken(ctx context.Context, t *PasswordResetToken) error
	GetResetToken(ctx context.Context, token string) (*PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error
}
