package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/auth"
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/service"
	"github.com/sakif/pluk/internal/session"
)

// AuthHandler registers, logs in and out, and reports who is logged in.
// A successful login sets the HttpOnly "token" cookie carrying the session
// id; every other /api route reads it through auth.RequireAuth.
type AuthHandler struct {
	auth   *service.AuthService
	secure bool
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, secure: secureCookies, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	Account  *model.Account `json:"account"`
	DarkMode bool           `json:"darkMode"`
}

// HandleRegister creates the account and logs it in.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"email": "ana@x.com", "password": "secret1"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetTokenCookie(w, result.Token, h.auth.Tokens().TTL(), h.secure)
	writeJSON(w, http.StatusCreated, meResponse{Account: result.Account})
}

// HandleLogin checks the credentials, opens a session holding the account's
// plants and sets the token cookie.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"email": "ana@x.com", "password": "secret1"}
//
// A wrong password and an unknown email get the same 401 so the endpoint
// does not reveal which emails are registered.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetTokenCookie(w, result.Token, h.auth.Tokens().TTL(), h.secure)

	resp := meResponse{Account: result.Account}
	if c, err := h.auth.Session(r.Context(), result.SessionID); err == nil {
		resp.DarkMode = c.DarkMode()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLogout ends the session and clears the cookie. It succeeds even
// without a valid cookie.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.SessionIDFromContext(r.Context()); ok {
		if err := h.auth.Logout(r.Context(), id); err != nil {
			h.logger.Warn("logout failed", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}

	auth.ClearTokenCookie(w, h.secure)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe reports who the cookie belongs to.
//
// HTTP: GET /api/me
//
// RESPONSE FORMAT:
//
//	{"account": {"id":"...","email":"ana@x.com",...}, "darkMode": false}
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Account: c.Account(), DarkMode: c.DarkMode()})
}

// currentSession resolves the request's token into its live controller.
func currentSession(r *http.Request, svc *service.AuthService) (*session.Controller, error) {
	id, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		return nil, apperror.SessionExpired()
	}
	return svc.Session(r.Context(), id)
}
