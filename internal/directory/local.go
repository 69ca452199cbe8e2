package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/auth"
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/repository"
)

// Local is the self-hosted directory. The normalized email doubles as the
// account id, and every secret is stored as a bcrypt hash.
type Local struct {
	accounts  repository.AccountStore
	passwords *auth.PasswordService
	logger    *slog.Logger
}

var _ Directory = (*Local)(nil)

func NewLocal(accounts repository.AccountStore, passwords *auth.PasswordService, logger *slog.Logger) *Local {
	return &Local{accounts: accounts, passwords: passwords, logger: logger}
}

func (d *Local) Register(ctx context.Context, email, password string) (*model.Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := d.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "password is too long")
	}

	acc := &model.Account{ID: email, Email: email, PasswordHash: hash}
	if err := d.accounts.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, apperror.StorageFailure(fmt.Errorf("directory: creating %s: %w", email, err))
	}

	d.logger.Info("account registered", "email", email)
	return acc, nil
}

// Authenticate answers InvalidCredentials for both an unknown email and a
// wrong password.
func (d *Local) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	acc, err := d.accounts.GetAccount(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, apperror.StorageFailure(fmt.Errorf("directory: loading %s: %w", email, err))
	}

	if err := d.passwords.Verify(acc.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrMismatch) {
			d.logger.Error("stored password hash is unreadable", "email", email, "error", err)
		}
		return nil, apperror.InvalidCredentials()
	}
	return acc, nil
}

// SetSecurityQuestion attaches or replaces the recovery question. Both
// question and answer must be non-blank.
func (d *Local) SetSecurityQuestion(ctx context.Context, email, question, answer string) error {
	email = NormalizeEmail(email)
	question = strings.TrimSpace(question)
	if question == "" {
		return apperror.ValidationFailed("question", "enter a security question")
	}
	if auth.NormalizeAnswer(answer) == "" {
		return apperror.ValidationFailed("answer", "enter an answer to your security question")
	}

	acc, err := d.LookupAccount(ctx, email)
	if err != nil {
		return err
	}

	hash, err := d.passwords.HashAnswer(answer)
	if err != nil {
		return apperror.ValidationFailed("answer", "answer is too long")
	}
	acc.SecurityQuestion = question
	acc.SecurityAnswerHash = hash

	if err := d.accounts.UpdateAccount(ctx, acc); err != nil {
		return apperror.StorageFailure(fmt.Errorf("directory: updating %s: %w", email, err))
	}
	return nil
}

// =========================================================================
// RECOVERY SUPPORT
// =========================================================================

// LookupAccount returns AccountNotFound for an unknown email.
func (d *Local) LookupAccount(ctx context.Context, email string) (*model.Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	acc, err := d.accounts.GetAccount(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.AccountNotFound(email)
		}
		return nil, apperror.StorageFailure(fmt.Errorf("directory: loading %s: %w", email, err))
	}
	return acc, nil
}

// VerifySecurityAnswer compares answer case-insensitively against the stored
// hash. It returns WrongAnswer on a mismatch, including for accounts that
// have no question.
func (d *Local) VerifySecurityAnswer(ctx context.Context, email, answer string) error {
	acc, err := d.LookupAccount(ctx, email)
	if err != nil {
		return err
	}
	if !acc.HasSecurityQuestion() {
		return apperror.WrongAnswer()
	}
	if err := d.passwords.VerifyAnswer(acc.SecurityAnswerHash, answer); err != nil {
		if !errors.Is(err, auth.ErrMismatch) {
			d.logger.Error("stored answer hash is unreadable", "email", acc.Email, "error", err)
		}
		return apperror.WrongAnswer()
	}
	return nil
}

// ResetPassword replaces the credential. When question and answer are both
// non-blank and the account has no question yet, they are attached too.
func (d *Local) ResetPassword(ctx context.Context, email, password, question, answer string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	acc, err := d.LookupAccount(ctx, email)
	if err != nil {
		return err
	}

	hash, err := d.passwords.Hash(password)
	if err != nil {
		return apperror.ValidationFailed("password", "password is too long")
	}
	acc.PasswordHash = hash

	question = strings.TrimSpace(question)
	if !acc.HasSecurityQuestion() && question != "" && auth.NormalizeAnswer(answer) != "" {
		answerHash, err := d.passwords.HashAnswer(answer)
		if err != nil {
			return apperror.ValidationFailed("answer", "answer is too long")
		}
		acc.SecurityQuestion = question
		acc.SecurityAnswerHash = answerHash
	}

	if err := d.accounts.UpdateAccount(ctx, acc); err != nil {
		return apperror.StorageFailure(fmt.Errorf("directory: resetting %s: %w", acc.Email, err))
	}

	d.logger.Info("password reset", "email", acc.Email)
	return nil
}
