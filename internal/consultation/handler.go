package consultation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"symptosafe/internal/analysis"
)

// maxAudioBytes matches the Whisper upload limit.
const maxAudioBytes = 25 << 20

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type AnalyzeRequest struct {
	Messages []analysis.Message `json:"messages"`
	// Image is a data URI or bare base64 payload.
	Image    string `json:"image,omitempty"`
	Language string `json:"language,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

type VoiceResponse struct {
	Text string `json:"text"`
	*TurnResponse
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	img, err := analysis.ParseImage(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.svc.AnalyzeTurn(r.Context(), TurnRequest{
		Messages: req.Messages,
		Image:    img,
		Language: req.Language,
		UserID:   req.UserID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes+1<<20)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error retrieving audio file")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read audio file")
		return
	}

	var history []analysis.Message
	if raw := r.FormValue("history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid history")
			return
		}
	}
	lang := r.FormValue("language")

	text, err := h.svc.TranscribeAudio(r.Context(), buf.Bytes(), header.Filename, lang)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "Transcription failed: "+err.Error())
		return
	}
	if text == "" {
		// silence or no speech detected
		writeJSON(w, http.StatusOK, VoiceResponse{Text: ""})
		return
	}

	messages := append(history, analysis.Message{
		Role:      analysis.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	resp, err := h.svc.AnalyzeTurn(r.Context(), TurnRequest{
		Messages: messages,
		Language: lang,
		UserID:   r.FormValue("userId"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VoiceResponse{Text: text, TurnResponse: &resp})
}

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := h.svc.ListSessions(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	pdf, _, err := h.svc.RenderReport(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%s.pdf"`, id))
	w.Write(pdf)
}

func (h *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.svc.ShareReport(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/analyze", h.HandleAnalyze)
	r.Post("/analyze/voice", h.HandleVoice)
	r.Get("/users/{userID}/sessions", h.HandleListSessions)
	r.Get("/sessions/{id}", h.HandleGetSession)
	r.Get("/sessions/{id}/report", h.HandleReport)
	r.Post("/sessions/{id}/share", h.HandleShare)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTurn):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
