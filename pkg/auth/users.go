package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// User is a corporate account that may run the request wizard.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type account struct {
	User
	passwordHash string
}

// Directory holds the corporate accounts known to this deployment. Passwords
// are kept only as argon2id hashes.
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]account
}

func NewDirectory() *Directory {
	return &Directory{accounts: make(map[string]account)}
}

func (d *Directory) Add(u User, password string) error {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = RoleHR
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[u.Email] = account{User: u, passwordHash: hash}
	return nil
}

func (d *Directory) Authenticate(email, password string) (User, error) {
	d.mu.RLock()
	acc, ok := d.accounts[strings.ToLower(strings.TrimSpace(email))]
	d.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}

	match, err := argon2id.ComparePasswordAndHash(password, acc.passwordHash)
	if err != nil {
		return User{}, fmt.Errorf("compare password: %w", err)
	}
	if !match {
		return User{}, ErrInvalidCredentials
	}
	return acc.User, nil
}
