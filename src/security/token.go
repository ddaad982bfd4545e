package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrOverrideDisabled = errors.New("override token not configured")
	ErrInvalidToken     = errors.New("invalid override token")
)

// TokenVerifier checks operator tokens against a bcrypt hash.
type TokenVerifier struct {
	hash []byte
}

func NewTokenVerifier(hash string) *TokenVerifier {
	return &TokenVerifier{hash: []byte(hash)}
}

func (v *TokenVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

func (v *TokenVerifier) Verify(token string) error {
	if !v.Enabled() {
		return ErrOverrideDisabled
	}
	if token == "" {
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// HashToken returns the bcrypt hash to configure as OVERRIDE_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token is empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hashed), nil
}
