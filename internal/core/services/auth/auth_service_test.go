package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

type memStore struct {
	byName map[string]*domain.User
}

func newMemStore() *memStore {
	return &memStore{byName: make(map[string]*domain.User)}
}

func (m *memStore) SaveUser(_ context.Context, user *domain.User) error {
	copied := *user
	m.byName[user.Username] = &copied
	return nil
}

func (m *memStore) UserByUsername(_ context.Context, username string) (*domain.User, error) {
	if u, ok := m.byName[username]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, errors.New("not found")
}

func (m *memStore) UserByTokenHash(_ context.Context, hash string) (*domain.User, error) {
	for _, u := range m.byName {
		if u.TokenHash != "" && u.TokenHash == hash {
			copied := *u
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func provision(t *testing.T, store *memStore, username, password string) {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	user, err := domain.NewUser("id-"+username, username)
	require.NoError(t, err)
	user.PasswordHash = hash
	require.NoError(t, store.SaveUser(context.Background(), user))
}

func TestLoginIssuesValidatableToken(t *testing.T) {
	store := newMemStore()
	provision(t, store, "admin", "hunter2")
	svc := NewService(store)

	token, err := svc.Login(context.Background(), "admin", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	user, err := svc.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.False(t, user.LastLogin.IsZero())

	// The raw token is never stored.
	assert.NotEqual(t, token, store.byName["admin"].TokenHash)
	assert.Equal(t, HashToken(token), store.byName["admin"].TokenHash)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	store := newMemStore()
	provision(t, store, "admin", "hunter2")
	svc := NewService(store)

	_, err := svc.Login(context.Background(), "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "ghost", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	store := newMemStore()
	provision(t, store, "admin", "hunter2")
	svc := NewService(store)

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := svc.Login(context.Background(), "admin", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := svc.Login(context.Background(), "admin", "hunter2")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestNewLoginReplacesOldToken(t *testing.T) {
	store := newMemStore()
	provision(t, store, "admin", "hunter2")
	svc := NewService(store)

	first, err := svc.Login(context.Background(), "admin", "hunter2")
	require.NoError(t, err)
	second, err := svc.Login(context.Background(), "admin", "hunter2")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = svc.Validate(context.Background(), first)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Validate(context.Background(), second)
	assert.NoError(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	store := newMemStore()
	provision(t, store, "admin", "hunter2")
	svc := NewService(store)

	token, err := svc.Login(context.Background(), "admin", "hunter2")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(context.Background(), token))

	_, err = svc.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Logging out an unknown token is a no-op.
	assert.NoError(t, svc.Logout(context.Background(), "bogus"))
}

func TestBootstrapSeedsOnlyOnce(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	require.NoError(t, svc.Bootstrap(context.Background(), "admin", hash))
	require.NoError(t, svc.Bootstrap(context.Background(), "admin", "other-hash"))

	user := store.byName["admin"]
	require.NotNil(t, user)
	assert.Equal(t, hash, user.PasswordHash)

	// Empty bootstrap values leave the store untouched.
	require.NoError(t, svc.Bootstrap(context.Background(), "", ""))
	assert.Len(t, store.byName, 1)
}
