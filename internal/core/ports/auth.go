package ports

import (
	"context"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// Authenticator issues and validates API bearer tokens.
type Authenticator interface {
	// Login verifies credentials and returns a fresh token.
	Login(ctx context.Context, username, password string) (string, error)
	// Validate resolves a token to its user.
	Validate(ctx context.Context, token string) (*domain.User, error)
	// Logout revokes a token.
	Logout(ctx context.Context, token string) error
}
