package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/server/auth"
)

type Service struct {
	repo                Repository
	jwtSecret           []byte
	tokenValidityPeriod time.Duration
}

func NewService(repo Repository, jwtSecret []byte, tokenValidityPeriod time.Duration) *Service {
	return &Service{
		repo:                repo,
		jwtSecret:           jwtSecret,
		tokenValidityPeriod: tokenValidityPeriod,
	}
}

// Register creates an account and returns a fresh access token.
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}

	user, err := s.repo.Create(ctx, &User{Email: email, PasswordHash: hash})
	if err != nil {
		return "", fmt.Errorf("error creating user: %w", err)
	}

	return auth.GenerateToken(user.ID, s.jwtSecret, s.tokenValidityPeriod)
}

// Login verifies credentials and returns an access token. A missing user
// and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrUnauthorized
		}
		return "", fmt.Errorf("error loading user: %w", err)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("error verifying password: %w", err)
	}
	if !ok {
		return "", common.ErrUnauthorized
	}

	return auth.GenerateToken(user.ID, s.jwtSecret, s.tokenValidityPeriod)
}

// Authenticate resolves a bearer token to a user id.
func (s *Service) Authenticate(tokenString string) (string, error) {
	userID, err := auth.GetUserIDFromToken(tokenString, s.jwtSecret)
	if err != nil {
		return "", common.ErrUnauthorized
	}
	return userID, nil
}
