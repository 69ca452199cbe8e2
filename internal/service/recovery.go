package service

import (
	"context"
	"log/slog"

	"github.com/rs/xid"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/recovery"
)

// ResetSender is implemented by directories whose provider recovers
// accounts by emailing a reset link (directory.Remote).
type ResetSender interface {
	SendPasswordReset(ctx context.Context, email string) error
}

// RecoveryService runs "forgot password". With the local directory it
// drives the security-question machine; with a hosted provider the email
// step sends the provider's reset link and the flow ends there.
type RecoveryService struct {
	registry *recovery.Registry
	sender   ResetSender
	logger   *slog.Logger
}

func NewLocalRecovery(registry *recovery.Registry, logger *slog.Logger) *RecoveryService {
	return &RecoveryService{registry: registry, logger: logger}
}

func NewEmailRecovery(sender ResetSender, logger *slog.Logger) *RecoveryService {
	return &RecoveryService{sender: sender, logger: logger}
}

// ByEmail reports whether the flow ends after the email step.
func (s *RecoveryService) ByEmail() bool {
	return s.sender != nil
}

func (s *RecoveryService) Begin(ctx context.Context) recovery.View {
	if s.ByEmail() {
		return recovery.View{ID: xid.New().String(), Step: recovery.StepAwaitingEmail}
	}
	return s.registry.Begin(ctx).View()
}

func (s *RecoveryService) SubmitEmail(ctx context.Context, id, email string) (recovery.View, error) {
	if s.ByEmail() {
		if err := s.sender.SendPasswordReset(ctx, email); err != nil {
			return recovery.View{}, err
		}
		s.logger.Info("password reset email requested", slog.String("recovery_id", id))
		return recovery.View{ID: id, Step: recovery.StepDone, Email: email}, nil
	}

	sess, err := s.registry.Get(id)
	if err != nil {
		return recovery.View{}, err
	}
	if err := s.registry.Machine().SubmitEmail(ctx, sess, email); err != nil {
		return sess.View(), err
	}
	return sess.View(), nil
}

func (s *RecoveryService) SubmitAnswer(ctx context.Context, id, answer string) (recovery.View, error) {
	if s.ByEmail() {
		return recovery.View{}, errEmailOnly()
	}
	sess, err := s.registry.Get(id)
	if err != nil {
		return recovery.View{}, err
	}
	if err := s.registry.Machine().SubmitAnswer(ctx, sess, answer); err != nil {
		return sess.View(), err
	}
	return sess.View(), nil
}

// SubmitNewPassword finishes the flow. The session is discarded once it
// reaches Done.
func (s *RecoveryService) SubmitNewPassword(ctx context.Context, id, password, question, answer string) (recovery.View, error) {
	if s.ByEmail() {
		return recovery.View{}, errEmailOnly()
	}
	sess, err := s.registry.Get(id)
	if err != nil {
		return recovery.View{}, err
	}
	if err := s.registry.Machine().SubmitNewPassword(ctx, sess, password, question, answer); err != nil {
		return sess.View(), err
	}
	s.registry.Finish(sess)
	return sess.View(), nil
}

func (s *RecoveryService) Cancel(id string) {
	if s.ByEmail() {
		return
	}
	s.registry.Cancel(id)
}

func errEmailOnly() error {
	return apperror.ValidationFailed("step", "this account provider resets passwords by email")
}
