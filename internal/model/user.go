package model

import (
	"strings"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/orm"
)

// User columns.
const (
	UserLogin    = "login"
	UserEmail    = "email"
	UserPassword = "password"
)

// User is an account. Only login, email and password can be mass-assigned;
// the password is stored as a bcrypt hash and never serialized.
func User(db *orm.DB, passwords *Passwords) *orm.Type {
	return db.Define(orm.Config{
		Name:     "User",
		Guarded:  []string{"*"},
		Fillable: []string{UserLogin, UserEmail, UserPassword},
		Hidden:   []string{UserPassword},
		Setters: map[string]orm.Setter{
			UserLogin:    trimString,
			UserEmail:    normalizeEmail,
			UserPassword: hashPassword(passwords),
		},
	})
}

func hashPassword(passwords *Passwords) orm.Setter {
	return func(_ *orm.Model, v any) (any, error) {
		plain, ok := v.(string)
		if !ok {
			return nil, apperror.ValidationFailed(UserPassword, "password must be a string")
		}
		return passwords.Hash(plain)
	}
}

func normalizeEmail(_ *orm.Model, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, apperror.ValidationFailed(UserEmail, "email must be a string")
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" && !strings.Contains(s, "@") {
		return nil, apperror.ValidationFailed(UserEmail, "email must contain @")
	}
	return s, nil
}

// CheckPassword compares plain against the stored hash of u.
func CheckPassword(passwords *Passwords, u *orm.Model, plain string) error {
	hash, _ := u.Raw(UserPassword).(string)
	return passwords.Verify(hash, plain)
}
