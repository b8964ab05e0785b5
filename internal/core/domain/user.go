package domain

import (
	"errors"
	"time"
)

var (
	ErrEmptyUsername   = errors.New("username cannot be empty")
	ErrInvalidPassword = errors.New("password does not meet security requirements")
)

// User represents an operator account. The password is stored as a bcrypt
// hash; the active bearer token is stored as a SHA-256 hash so a database
// leak does not leak usable tokens.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose hash in JSON
	TokenHash    string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login"`
}

// NewUser creates a new validated user instance.
func NewUser(id, username string) (*User, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}
	return &User{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UpdateLastLogin refreshes the last login timestamp.
func (u *User) UpdateLastLogin() {
	u.LastLogin = time.Now().UTC()
}

// Validate ensures the user entity is in a valid state.
func (u *User) Validate() error {
	if u.Username == "" {
		return ErrEmptyUsername
	}
	return nil
}

// Credentials represents the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
