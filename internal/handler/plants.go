package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/care"
	"github.com/sakif/pluk/internal/model"
	"github.com/sakif/pluk/internal/service"
)

// PlantHandler exposes the plant collection of the logged-in account and
// the two care actions.
type PlantHandler struct {
	auth   *service.AuthService
	now    func() time.Time
	logger *slog.Logger
}

func NewPlantHandler(svc *service.AuthService, now func() time.Time, logger *slog.Logger) *PlantHandler {
	if now == nil {
		now = time.Now
	}
	return &PlantHandler{auth: svc, now: now, logger: logger}
}

// plantResponse adds the remaining-time labels the dashboard shows, e.g.
// "3d 4h", "5h" or "Agora!".
type plantResponse struct {
	model.Plant
	WaterIn      string `json:"waterIn"`
	SunIn        string `json:"sunIn"`
	WaterOverdue bool   `json:"waterOverdue"`
	SunOverdue   bool   `json:"sunOverdue"`
}

func toResponse(p model.Plant, now time.Time) plantResponse {
	water := care.TimeRemaining(p.NextWaterDue, now)
	sun := care.TimeRemaining(p.NextSunDue, now)
	return plantResponse{
		Plant:        p,
		WaterIn:      water.String(),
		SunIn:        sun.String(),
		WaterOverdue: water.Overdue,
		SunOverdue:   sun.Overdue,
	}
}

func toResponses(plants []model.Plant, now time.Time) []plantResponse {
	out := make([]plantResponse, 0, len(plants))
	for _, p := range plants {
		out = append(out, toResponse(p, now))
	}
	return out
}

// HandleList returns the session's plants with their countdown labels.
//
// HTTP: GET /api/plants
//
// RESPONSE FORMAT:
//
//	[
//	  {"id":"...","nickname":"Spike","nextWaterDue":"...","waterIn":"3d 4h","sunIn":"Agora!","sunOverdue":true,...},
//	  ...
//	]
//
// Labels are computed at request time, so polling this endpoint is how the
// dashboard ticks.
func (h *PlantHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}
	plants, err := c.Plants()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponses(plants, h.now()))
}

// HandleCreate adds a plant.
//
// HTTP: POST /api/plants
// REQUEST BODY: {"type": "suculenta", "nickname": "Spike", "species": "", "photo": ""}
func (h *PlantHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}

	var in model.NewPlantInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.Type == "" {
		in.Type = model.DefaultSpeciesKey
	}

	p, err := c.AddPlant(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(p, h.now()))
}

// HandleGet returns one plant from the session mirror. A plant owned by
// another account is reported as not found.
//
// HTTP: GET /api/plants/{id}
func (h *PlantHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := c.Plant(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p, h.now()))
}

// HandleWater records a watering now.
//
// HTTP: POST /api/plants/{id}/water
func (h *PlantHandler) HandleWater(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := c.WaterPlant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p, h.now()))
}

// sunHours accepts both a JSON number and the text typed into the form
// ("2.5" or "2,5").
type sunHours float64

func (s *sunHours) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		h, err := care.ParseSunHours(text)
		if err != nil {
			return err
		}
		*s = sunHours(h)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return apperror.ValidationFailed("hours", "hours must be a number")
	}
	*s = sunHours(n)
	return nil
}

type sunRequest struct {
	Hours sunHours `json:"hours"`
}

// HandleSun logs a sun session.
//
// HTTP: POST /api/plants/{id}/sun
// REQUEST BODY: {"hours": 2.5} or {"hours": "2,5"}
func (h *PlantHandler) HandleSun(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}

	var req sunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := c.SunPlant(r.Context(), chi.URLParam(r, "id"), float64(req.Hours))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p, h.now()))
}

// HandleDelete removes a plant. The client must pass confirm=true after
// asking the user.
//
// HTTP: DELETE /api/plants/{id}?confirm=true
func (h *PlantHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, apperror.ValidationFailed("confirm", "confirm the deletion with confirm=true"))
		return
	}

	if err := c.DeletePlant(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
