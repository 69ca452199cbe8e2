package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pluk/internal/recovery"
	"github.com/sakif/pluk/internal/service"
)

// RecoveryHandler drives the "forgot password" flow. Every call returns the
// current view of the attempt so the client can render the next step.
type RecoveryHandler struct {
	recovery *service.RecoveryService
	logger   *slog.Logger
}

func NewRecoveryHandler(svc *service.RecoveryService, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{recovery: svc, logger: logger}
}

type recoveryResponse struct {
	recovery.View
	ByEmail bool `json:"byEmail"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type newPasswordRequest struct {
	Password string `json:"password"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// writeView answers with the view even on a failed step: a wrong answer
// still reports where the attempt stands.
func (h *RecoveryHandler) writeView(w http.ResponseWriter, status int, v recovery.View) {
	writeJSON(w, status, recoveryResponse{View: v, ByEmail: h.recovery.ByEmail()})
}

// HandleBegin opens a recovery attempt waiting for an email.
//
// HTTP: POST /api/recovery
//
// RESPONSE FORMAT:
//
//	{"id":"...","step":"awaiting_email","noQuestion":false,"attempts":0,"expiresAt":"...","byEmail":false}
//
// The id goes into every later step's URL. With a remote identity provider
// byEmail is true and the only remaining step is /email.
func (h *RecoveryHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, http.StatusCreated, h.recovery.Begin(r.Context()))
}

// HandleEmail names the account to recover. With a remote identity provider
// this sends the reset email and finishes the attempt.
//
// HTTP: POST /api/recovery/{id}/email
// REQUEST BODY: {"email": "ana@x.com"}
func (h *RecoveryHandler) HandleEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	v, err := h.recovery.SubmitEmail(r.Context(), chi.URLParam(r, "id"), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeView(w, http.StatusOK, v)
}

// HandleAnswer checks the security answer, comparing it case-insensitively.
//
// HTTP: POST /api/recovery/{id}/answer
// REQUEST BODY: {"answer": "rex"}
func (h *RecoveryHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	v, err := h.recovery.SubmitAnswer(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeView(w, http.StatusOK, v)
}

// HandlePassword sets the new password and, for accounts that had none,
// optionally a security question.
//
// HTTP: POST /api/recovery/{id}/password
// REQUEST BODY: {"password": "new-pass", "question": "", "answer": ""}
func (h *RecoveryHandler) HandlePassword(w http.ResponseWriter, r *http.Request) {
	var req newPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	v, err := h.recovery.SubmitNewPassword(r.Context(), chi.URLParam(r, "id"), req.Password, req.Question, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeView(w, http.StatusOK, v)
}

// HandleCancel discards the attempt. Unknown ids are ignored.
//
// HTTP: DELETE /api/recovery/{id}
func (h *RecoveryHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.recovery.Cancel(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
