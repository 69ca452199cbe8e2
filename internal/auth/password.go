// Package auth holds the credential primitives: bcrypt hashing for passwords
// and security answers, signed session tokens, and the middleware that turns
// a token cookie into a login session id.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor. Aim for roughly 250ms per hash on
// production hardware.
const defaultCost = 12

// ErrMismatch is returned by Verify and VerifyAnswer when the secret does not
// match the hash.
var ErrMismatch = errors.New("auth: secret does not match")

// PasswordService hashes and checks secrets with bcrypt. The cost is a field
// so tests can run at the minimum cost of 4.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest is for tests in other packages.
// Do NOT use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns a self-contained bcrypt hash (salt and cost embedded).
// bcrypt silently truncates input past 72 bytes, so longer secrets are
// rejected instead.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil on a match and ErrMismatch on a wrong secret.
// The comparison is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// NormalizeAnswer is applied to security answers before hashing and before
// comparing, which is what makes "  Rex " match "rex".
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// HashAnswer hashes a security answer after normalizing it.
func (p *PasswordService) HashAnswer(answer string) (string, error) {
	return p.Hash(NormalizeAnswer(answer))
}

// VerifyAnswer compares a user-supplied answer against a HashAnswer hash.
func (p *PasswordService) VerifyAnswer(hash, answer string) error {
	return p.Verify(hash, NormalizeAnswer(answer))
}
