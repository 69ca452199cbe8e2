package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/pluk/internal/service"
)

// AccountHandler edits per-account settings of the logged-in session.
type AccountHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAccountHandler(svc *service.AuthService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{auth: svc, logger: logger}
}

type darkModeRequest struct {
	Enabled bool `json:"enabled"`
}

type darkModeResponse struct {
	DarkMode bool `json:"darkMode"`
}

// HandleDarkMode stores the theme preference for this session only.
//
// HTTP: PUT /api/preferences/dark-mode
// REQUEST BODY: {"enabled": true}
func (h *AccountHandler) HandleDarkMode(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}

	var req darkModeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := c.SetDarkMode(r.Context(), req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, darkModeResponse{DarkMode: c.DarkMode()})
}

type securityQuestionRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// HandleSecurityQuestion sets or replaces the question used by password
// recovery. The answer is stored hashed.
//
// HTTP: PUT /api/account/security-question
// REQUEST BODY: {"question": "Nome do primeiro pet?", "answer": "Rex"}
func (h *AccountHandler) HandleSecurityQuestion(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}

	var req securityQuestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := c.SetSecurityQuestion(r.Context(), req.Question, req.Answer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Account: c.Account(), DarkMode: c.DarkMode()})
}
