package consultation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"symptosafe/internal/analysis"
	"symptosafe/internal/safety"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidTurn = errors.New("invalid turn")
	// ErrUnavailable marks optional integrations that are not configured.
	ErrUnavailable = errors.New("feature not configured")
)

// Session is one finished turn as it is stored for history and trends.
type Session struct {
	ID       uuid.UUID          `json:"id"`
	UserID   string             `json:"userId"`
	Messages []analysis.Message `json:"messages"`

	// Exactly one of Analysis and Emergency is set.
	Analysis  *analysis.Result        `json:"analysis"`
	Emergency *safety.EmergencyResult `json:"emergency,omitempty"`

	UserMessage      string             `json:"userMessage"`
	RiskScore        int                `json:"riskScore"`
	RiskLevel        analysis.RiskLevel `json:"riskLevel"`
	PrimaryCondition *string            `json:"primaryCondition"`
	Language         string             `json:"language,omitempty"`
	CreatedAt        time.Time          `json:"timestamp"`
}

type TurnRequest struct {
	Messages []analysis.Message
	Image    *analysis.Image
	Language string
	// UserID enables persistence; anonymous turns are not stored.
	UserID string
}

type TurnResponse struct {
	Emergency safety.EmergencyResult `json:"emergency"`
	Analysis  *analysis.Result       `json:"analysis"`
	SessionID string                 `json:"sessionId,omitempty"`
}

// newSession derives the stored record for a turn. Emergencies are stored as
// critical with no primary condition.
func newSession(req TurnRequest, resp TurnResponse, now time.Time) *Session {
	s := &Session{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Messages:    req.Messages,
		UserMessage: analysis.LatestUserText(req.Messages),
		Language:    req.Language,
		CreatedAt:   now.UTC(),
	}

	if resp.Emergency.IsEmergency {
		e := resp.Emergency
		s.Emergency = &e
		s.RiskLevel = analysis.RiskCritical
	} else if resp.Analysis != nil {
		s.Analysis = resp.Analysis
		s.RiskLevel = resp.Analysis.RiskLevel
		if name, ok := resp.Analysis.PrimaryCondition(); ok {
			s.PrimaryCondition = &name
		}
	}
	s.RiskScore = s.RiskLevel.Score()
	return s
}
