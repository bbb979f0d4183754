package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"symptosafe/internal/analysis"
	"symptosafe/internal/consultation"
	"symptosafe/internal/logging"
	"symptosafe/internal/safety"
)

// HistoryLimit bounds how many stored sessions feed one prediction.
const HistoryLimit = 30

// SessionLister is the slice of consultation.Repository the handler reads.
type SessionLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]consultation.Session, error)
}

type Handler struct {
	predictor *Predictor
	sessions  SessionLister
	logger    *zap.Logger
}

// NewHandler accepts a nil lister; requests by userId then report no data.
func NewHandler(p *Predictor, sessions SessionLister, logger *zap.Logger) *Handler {
	return &Handler{predictor: p, sessions: sessions, logger: logging.OrNop(logger)}
}

// sessionInput is the client-side session shape. IDs are not required.
type sessionInput struct {
	Messages  []analysis.Message      `json:"messages"`
	Analysis  *analysis.Result        `json:"analysis"`
	Emergency *safety.EmergencyResult `json:"emergency"`
	RiskLevel analysis.RiskLevel      `json:"riskLevel"`
	Timestamp time.Time               `json:"timestamp"`
}

type predictRequest struct {
	Sessions []sessionInput `json:"sessions"`
	UserID   string         `json:"userId"`
}

func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sessions := make([]consultation.Session, 0, len(req.Sessions))
	for _, in := range req.Sessions {
		sessions = append(sessions, consultation.Session{
			Messages:  in.Messages,
			Analysis:  in.Analysis,
			Emergency: in.Emergency,
			RiskLevel: in.RiskLevel,
			CreatedAt: in.Timestamp,
		})
	}

	userID := strings.TrimSpace(req.UserID)
	if len(sessions) == 0 && userID != "" && h.sessions != nil {
		stored, err := h.sessions.ListByUser(r.Context(), userID, HistoryLimit)
		if err != nil {
			h.logger.Error("load sessions for prediction", zap.String("user_id", userID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to load sessions")
			return
		}
		sessions = chronological(stored)
	}

	writeJSON(w, http.StatusOK, h.predictor.Predict(r.Context(), sessions))
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/predict", h.HandlePredict)
}

// chronological reverses the repository's newest-first order.
func chronological(s []consultation.Session) []consultation.Session {
	out := make([]consultation.Session, len(s))
	for i := range s {
		out[len(s)-1-i] = s[i]
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
