package handler

import (
	"net/http"

	"github.com/sakif/pluk/internal/model"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping() error
}

type healthResponse struct {
	Status string `json:"status"`
}

// HandleSpecies lists the plant type catalog.
//
// HTTP: GET /api/species
func HandleSpecies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.AllSpecies())
}

// HealthHandler answers 503 when db is set and unreachable. A nil db (the
// session-scoped backend) is always healthy.
//
// HTTP: GET /health
func HealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
