package model

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/activerecord/internal/apperror"
)

const (
	// DefaultPasswordCost is the bcrypt work factor used in production.
	DefaultPasswordCost = 12
	MinPasswordLength   = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// Passwords hashes and verifies passwords with bcrypt.
type Passwords struct {
	cost int
}

// NewPasswords returns a hasher with the given cost; 0 means
// DefaultPasswordCost. Tests pass bcrypt.MinCost.
func NewPasswords(cost int) *Passwords {
	if cost == 0 {
		cost = DefaultPasswordCost
	}
	return &Passwords{cost: cost}
}

// Hash validates plain and returns its bcrypt hash.
func (p *Passwords) Hash(plain string) (string, error) {
	if len(plain) < MinPasswordLength {
		return "", apperror.ValidationFailed(UserPassword,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(plain) > maxPasswordBytes {
		return "", apperror.ValidationFailed(UserPassword,
			fmt.Sprintf("password must be %d bytes or fewer", maxPasswordBytes))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), p.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports a validation error when plain does not match hash.
func (p *Passwords) Verify(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return apperror.ValidationFailed(UserPassword, "invalid password")
	}
	return fmt.Errorf("comparing password hash: %w", err)
}
