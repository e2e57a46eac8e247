// Package auth issues and checks the signed session tokens returned by
// POST /api/users/login.
//
// Tokens are HS256 JWTs whose subject is the user's primary key:
//
//	HEADER.PAYLOAD.SIGNATURE
//	payload: {"iss":"activerecord","sub":"42","iat":...,"exp":...}
//
// Verification needs only the secret, so no session table is kept.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/activerecord/internal/apperror"
)

const (
	// Issuer is written to and required in every token.
	Issuer = "activerecord"
	// DefaultTokenTTL applies when NewTokenService gets a zero ttl.
	DefaultTokenTTL = 15 * time.Minute
	// MinSecretLength is the shortest accepted HMAC secret.
	MinSecretLength = 16
)

// TokenService signs and validates session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns a TokenService signing with secret. A zero ttl
// means DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, apperror.Configuration(
			fmt.Sprintf("auth: JWT secret must be at least %d characters", MinSecretLength))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Generate signs a token for userID that expires after the service TTL.
func (s *TokenService) Generate(userID string) (string, time.Time, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration signs a token for userID that expires after d.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, apperror.ValidationFailed("sub", "auth: token subject is required")
	}
	now := s.now()
	expires := now.Add(d)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, expires, nil
}

// Validate checks the signature, algorithm, issuer and expiry of tokenStr
// and returns its subject. Every rejection is an apperror.ErrUnauthorized.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperror.Unauthorized("token expired")
		}
		return "", apperror.Unauthorized("invalid token")
	}
	if claims.Subject == "" {
		return "", apperror.Unauthorized("token has no subject")
	}
	return claims.Subject, nil
}
