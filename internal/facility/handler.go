package facility

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"symptosafe/internal/logging"
)

// Finder is satisfied by *Client.
type Finder interface {
	Nearby(ctx context.Context, q Query) ([]Facility, error)
}

type Handler struct {
	finder Finder
	logger *zap.Logger
}

func NewHandler(finder Finder, logger *zap.Logger) *Handler {
	return &Handler{finder: finder, logger: logging.OrNop(logger)}
}

type nearbyRequest struct {
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RadiusMeters *float64 `json:"radiusMeters"`
}

type nearbyResponse struct {
	Facilities []Facility `json:"facilities"`
}

func (h *Handler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	var req nearbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Latitude and longitude must be numbers")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, http.StatusBadRequest, "Latitude and longitude must be numbers")
		return
	}

	q := Query{Latitude: *req.Latitude, Longitude: *req.Longitude, RadiusMeters: DefaultRadiusMeters}
	if req.RadiusMeters != nil && *req.RadiusMeters > 0 {
		q.RadiusMeters = *req.RadiusMeters
	}

	facilities, err := h.finder.Nearby(r.Context(), q)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, nearbyResponse{Facilities: facilities})
	case errors.Is(err, ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAllMirrorsFailed):
		h.logger.Error("facility lookup failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "Medical facility service is temporarily unavailable. Please try again later.",
			"details": err.Error(),
		})
	default:
		h.logger.Error("facility lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch medical facilities")
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/medical-facilities", h.HandleNearby)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
