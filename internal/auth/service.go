package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/nexushq/nexus/internal/shared"
)

// Service wraps authentication business rules. Failed lookups, inactive
// accounts and wrong passwords all collapse into ErrInvalidCredentials so
// callers cannot probe which accounts exist.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}
