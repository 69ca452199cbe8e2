package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/collab"
	"github.com/sakif/pluk/internal/service"
)

// EnvironmentHandler serves the dashboard side panel (weather and nearby
// garden shops) and the photo identification helper.
type EnvironmentHandler struct {
	auth       *service.AuthService
	identifier collab.SpeciesIdentifier
	logger     *slog.Logger
}

func NewEnvironmentHandler(svc *service.AuthService, identifier collab.SpeciesIdentifier, logger *slog.Logger) *EnvironmentHandler {
	return &EnvironmentHandler{auth: svc, identifier: identifier, logger: logger}
}

// coordinatesFrom reads lat and lon. Missing or unparsable values mean the
// browser denied geolocation, which the report treats as "use the default".
func coordinatesFrom(r *http.Request) *collab.Coordinates {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return nil
	}
	return &collab.Coordinates{Lat: lat, Lon: lon}
}

// HandleEnvironment always answers 200; collaborator failures show up as
// fallback flags in the report.
//
// HTTP: GET /api/environment?lat=-23.55&lon=-46.63
func (h *EnvironmentHandler) HandleEnvironment(w http.ResponseWriter, r *http.Request) {
	c, err := currentSession(r, h.auth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Environment(r.Context(), coordinatesFrom(r)))
}

type identifyRequest struct {
	Photo string `json:"photo"`
}

// HandleIdentify suggests a catalog type for a photo.
//
// HTTP: POST /api/identify
// REQUEST BODY: {"photo": "data:image/jpeg;base64,..."}
func (h *EnvironmentHandler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.identifier.Identify(r.Context(), req.Photo)
	if err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			h.logger.Warn("identify failed", slog.String("error", err.Error()))
			err = apperror.IdentificationFailed(err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}
