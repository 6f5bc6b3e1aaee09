package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/camelloncase/healthgo/internal/platform/auth"
)

const (
	minPasswordLength = 6
	resetTokenTTL     = 30 * time.Minute
)

// Service implements account management and login.
type Service struct {
	repo   Repository
	jwt    auth.JWTConfig
	logger zerolog.Logger
}

func NewService(repo Repository, jwt auth.JWTConfig, logger zerolog.Logger) *Service {
	return &Service{repo: repo, jwt: jwt, logger: logger}
}

// Signup creates an account with a bcrypt-hashed password.
func (s *Service) Signup(ctx context.Context, username, password, role string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	if role != auth.RoleDoctor && role != auth.RoleVisitor {
		return nil, fmt.Errorf("%w: role must be %s or %s", ErrValidation, auth.RoleDoctor, auth.RoleVisitor)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info().Str("username", username).Str("role", role).Msg("user created")
	return u, nil
}

// Login verifies the credentials and issues a signed token carrying the
// user's role.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.IssueToken(s.jwt, u.Username, []string{u.Role})
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// List returns all accounts ordered by username.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// CreateResetToken issues a single-use password reset token for the named
// account.
func (s *Service) CreateResetToken(ctx context.Context, username string) (*PasswordResetToken, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}

	t := &PasswordResetToken{
		ID:        uuid.New(),
		UserID:    u.ID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(resetTokenTTL),
	}
	if err := s.repo.CreateResetToken(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ResetPassword consumes a reset token and sets a new password. Expired or
// already-used tokens are rejected.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	t, err := s.repo.GetResetToken(ctx, token)
	if err != nil {
		return err
	}
	if t.Used {
		return fmt.Errorf("%w: token already used", ErrValidation)
	}
	if t.Expired(time.Now()) {
		return fmt.Errorf("%w: token expired", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, t.UserID, string(hash)); err != nil {
		return err
	}
	return s.repo.MarkResetTokenUsed(ctx, t.ID)
}
