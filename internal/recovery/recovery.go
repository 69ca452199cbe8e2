// Package recovery implements the "forgot password" flow:
//
//	AwaitingEmail → AwaitingSecurityAnswer → AwaitingNewPassword → Done
//
// Accounts without a security question skip straight from the email step to
// the new password. A wrong answer keeps the session where it is and can be
// retried without limit.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/model"
)

type Step int

const (
	StepAwaitingEmail Step = iota + 1
	StepAwaitingSecurityAnswer
	StepAwaitingNewPassword
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepAwaitingEmail:
		return "awaiting_email"
	case StepAwaitingSecurityAnswer:
		return "awaiting_security_answer"
	case StepAwaitingNewPassword:
		return "awaiting_new_password"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Accounts is what the machine needs from the directory. directory.Local
// implements it.
type Accounts interface {
	LookupAccount(ctx context.Context, email string) (*model.Account, error)
	VerifySecurityAnswer(ctx context.Context, email, answer string) error
	ResetPassword(ctx context.Context, email, password, question, answer string) error
}

// Session is one recovery attempt. It is safe for concurrent use; every
// transition happens under its lock.
type Session struct {
	mu sync.Mutex

	id         string
	step       Step
	email      string
	question   string
	noQuestion bool
	attempts   int
	expiresAt  time.Time
}

// View is a copy of a Session's public state.
type View struct {
	ID         string    `json:"id"`
	Step       Step      `json:"step"`
	Email      string    `json:"email,omitempty"`
	Question   string    `json:"question,omitempty"`
	NoQuestion bool      `json:"noQuestion"`
	Attempts   int       `json:"attempts"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:         s.id,
		Step:       s.step,
		Email:      s.email,
		Question:   s.question,
		NoQuestion: s.noQuestion,
		Attempts:   s.attempts,
		ExpiresAt:  s.expiresAt,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Machine drives Sessions through the flow.
type Machine struct {
	accounts Accounts
	logger   *slog.Logger
}

func NewMachine(accounts Accounts, logger *slog.Logger) *Machine {
	return &Machine{accounts: accounts, logger: logger}
}

// Start returns a fresh session waiting for an email.
func (m *Machine) Start(_ context.Context) *Session {
	return &Session{id: xid.New().String(), step: StepAwaitingEmail}
}

func wrongStep(s *Session, want Step) error {
	return apperror.ValidationFailed("step",
		fmt.Sprintf("recovery is at %s, not %s", s.step, want))
}

// SubmitEmail moves to AwaitingSecurityAnswer, or to AwaitingNewPassword when
// the account has no question. An unknown email leaves the session as is.
func (m *Machine) SubmitEmail(ctx context.Context, s *Session, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepAwaitingEmail {
		return wrongStep(s, StepAwaitingEmail)
	}

	acc, err := m.accounts.LookupAccount(ctx, email)
	if err != nil {
		return err
	}

	s.email = acc.Email
	if acc.HasSecurityQuestion() {
		s.question = acc.SecurityQuestion
		s.step = StepAwaitingSecurityAnswer
	} else {
		s.noQuestion = true
		s.step = StepAwaitingNewPassword
	}

	m.logger.Info("recovery email accepted",
		"recovery_id", s.id,
		"email", s.email,
		"next", s.step.String(),
	)
	return nil
}

// SubmitAnswer compares case-insensitively. A mismatch returns WrongAnswer
// and the session stays at AwaitingSecurityAnswer.
func (m *Machine) SubmitAnswer(ctx context.Context, s *Session, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepAwaitingSecurityAnswer {
		return wrongStep(s, StepAwaitingSecurityAnswer)
	}

	s.attempts++
	if err := m.accounts.VerifySecurityAnswer(ctx, s.email, answer); err != nil {
		return err
	}

	s.step = StepAwaitingNewPassword
	return nil
}

// SubmitNewPassword replaces the credential and finishes the flow. question
// and answer are only used when the account entered without a question, and
// only when both are non-blank.
func (m *Machine) SubmitNewPassword(ctx context.Context, s *Session, password, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepAwaitingNewPassword {
		return wrongStep(s, StepAwaitingNewPassword)
	}

	if !s.noQuestion || strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		question, answer = "", ""
	}
	if err := m.accounts.ResetPassword(ctx, s.email, password, question, answer); err != nil {
		return err
	}

	s.step = StepDone
	m.logger.Info("recovery completed", "recovery_id", s.id, "email", s.email)
	return nil
}
