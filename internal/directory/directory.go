// Package directory registers and authenticates accounts. Local keeps them in
// the active backend's account store; Remote delegates to a hosted identity
// provider and translates its error codes into the same apperror values.
package directory

import (
	"context"
	"net/mail"
	"strings"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/model"
)

// MinPasswordLength is shared with password recovery.
const MinPasswordLength = 6

type Directory interface {
	Register(ctx context.Context, email, password string) (*model.Account, error)
	Authenticate(ctx context.Context, email, password string) (*model.Account, error)
	SetSecurityQuestion(ctx context.Context, email, question, answer string) error
}

// NormalizeEmail trims and lower-cases an email so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail expects an already normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "enter your email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return apperror.ValidationFailed("email", "enter a valid email address")
	}
	return nil
}

// ValidatePassword enforces the length policy. Length is counted in
// characters, not bytes.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return apperror.WeakPassword(MinPasswordLength)
	}
	return nil
}
