package model

import "time"

// Account is a registered user.
//
// The local directory keys accounts by email, so ID == Email there. When a
// remote identity provider is used, ID is the provider's opaque user id.
//
// PasswordHash and SecurityAnswerHash are bcrypt hashes. The answer is
// trimmed and lower-cased before hashing, which is what makes the recovery
// comparison case-insensitive.
type Account struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"passwordHash,omitempty"`
	SecurityQuestion   string    `json:"securityQuestion,omitempty"`
	SecurityAnswerHash string    `json:"securityAnswerHash,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// HasSecurityQuestion reports whether recovery must ask the question.
func (a *Account) HasSecurityQuestion() bool {
	return a.SecurityQuestion != "" && a.SecurityAnswerHash != ""
}

// Public strips credential material. It is the shape written to the
// current-user snapshot and returned over HTTP.
func (a Account) Public() Account {
	a.PasswordHash = ""
	a.SecurityAnswerHash = ""
	return a
}
