// Package service sits between the HTTP handlers and the session layer.
//
//	Handler (HTTP) → Service (tokens, flow selection) → session / recovery
//
// Services accept and return plain values and apperror errors, never HTTP
// types, so the same calls work from tests and tools.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/auth"
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/session"
)

// AuthService turns logins into signed session tokens and resolves tokens
// back into live session controllers.
type AuthService struct {
	sessions *session.Manager
	tokens   *auth.TokenService
	logger   *slog.Logger
}

func NewAuthService(sessions *session.Manager, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// AuthResult bundles the account and the token so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	Account   *model.Account
	Token     string
	SessionID string
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	c, err := s.sessions.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, c)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	c, err := s.sessions.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, c)
}

func (s *AuthService) issue(ctx context.Context, c *session.Controller) (*AuthResult, error) {
	token, err := s.tokens.Generate(c.ID())
	if err != nil {
		// without a token the session is unreachable
		s.sessions.Logout(ctx, c.ID())
		return nil, fmt.Errorf("service/auth: generating token for session %s: %w", c.ID(), err)
	}

	acc := c.Account()
	s.logger.Info("login issued",
		slog.String("session_id", c.ID()),
		slog.String("email", acc.Email),
	)
	return &AuthResult{Account: acc, Token: token, SessionID: c.ID()}, nil
}

// Session returns the controller behind a token's session id.
func (s *AuthService) Session(ctx context.Context, sessionID string) (*session.Controller, error) {
	if sessionID == "" {
		return nil, apperror.SessionExpired()
	}
	return s.sessions.Get(ctx, sessionID)
}

// Logout ends the session. Logging out an unknown session is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Logout(ctx, sessionID)
}

// ValidateToken returns the session id inside a token.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	id, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return id, nil
}

// Tokens is used by the router to install the auth middleware.
func (s *AuthService) Tokens() *auth.TokenService {
	return s.tokens
}
