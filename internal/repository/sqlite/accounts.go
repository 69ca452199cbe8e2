package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/repository"
)

var _ repository.AccountStore = (*DB)(nil)

// GetAccount looks an account up by its normalized email.
func (db *DB) GetAccount(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, security_question, security_answer_hash,
		        created_at, updated_at
		 FROM accounts WHERE email = ?`,
		email,
	).Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.SecurityQuestion,
		&a.SecurityAnswerHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.AccountNotFound(email)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", email, err)
	}

	return &a, nil
}

// CreateAccount inserts account, filling in ID (the email, when empty) and
// the timestamps. A taken email surfaces as apperror.DuplicateAccount.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = account.Email
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (email, id, password_hash, security_question,
		                       security_answer_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.Email,
		account.ID,
		account.PasswordHash,
		account.SecurityQuestion,
		account.SecurityAnswerHash,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateAccount(account.Email)
		}
		return fmt.Errorf("sqlite: inserting account %s: %w", account.Email, err)
	}
	return nil
}

// UpdateAccount rewrites the credential and security question columns.
func (db *DB) UpdateAccount(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET password_hash = ?, security_question = ?, security_answer_hash = ?, updated_at = ?
		 WHERE email = ?`,
		account.PasswordHash,
		account.SecurityQuestion,
		account.SecurityAnswerHash,
		account.UpdatedAt,
		account.Email,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating account %s: %w", account.Email, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.AccountNotFound(account.Email)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
