// Package auth issues and validates the API bearer tokens. Tokens are
// random 32-byte strings handed out once; only their SHA-256 hash is stored,
// so a database leak does not leak usable credentials.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRateLimited        = errors.New("too many login attempts")
)

const maxLoginAttempts = 5

// UserStore is the persistence surface the service needs.
type UserStore interface {
	SaveUser(ctx context.Context, user *domain.User) error
	UserByUsername(ctx context.Context, username string) (*domain.User, error)
	UserByTokenHash(ctx context.Context, tokenHash string) (*domain.User, error)
}

// Service validates credentials and manages the per-user bearer token.
type Service struct {
	store UserStore

	mu       sync.Mutex
	attempts map[string]int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, attempts: make(map[string]int)}
}

// Bootstrap seeds the initial operator account from the environment-provided
// username and bcrypt hash. A no-op when either is empty or the user exists.
func (s *Service) Bootstrap(ctx context.Context, username, passwordHash string) error {
	if username == "" || passwordHash == "" {
		return nil
	}
	if _, err := s.store.UserByUsername(ctx, username); err == nil {
		return nil
	}

	user, err := domain.NewUser(uuid.New().String(), username)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return s.store.SaveUser(ctx, user)
}

// Login verifies the password and returns a fresh bearer token, replacing
// any token the user held before. Failures are counted per username; the
// account locks after maxLoginAttempts until a successful login.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	s.mu.Lock()
	blocked := s.attempts[username] >= maxLoginAttempts
	s.mu.Unlock()
	if blocked {
		return "", ErrRateLimited
	}

	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		s.recordFailure(username)
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(username)
		return "", ErrInvalidCredentials
	}

	s.mu.Lock()
	delete(s.attempts, username)
	s.mu.Unlock()

	token, err := newToken()
	if err != nil {
		return "", err
	}
	user.TokenHash = HashToken(token)
	user.UpdateLastLogin()
	if err := s.store.SaveUser(ctx, user); err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}
	return token, nil
}

// Validate resolves a bearer token to its user.
func (s *Service) Validate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.store.UserByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// Logout revokes the token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	user, err := s.Validate(ctx, token)
	if err != nil {
		return nil
	}
	user.TokenHash = ""
	return s.store.SaveUser(ctx, user)
}

func (s *Service) recordFailure(username string) {
	s.mu.Lock()
	s.attempts[username]++
	s.mu.Unlock()
}

// newToken returns a 32-byte random token in URL-safe base64.
func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken returns the hex SHA-256 of a token, the form stored at rest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashPassword produces a bcrypt hash for provisioning accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
