package consultation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"symptosafe/internal/analysis"
	"symptosafe/internal/logging"
	"symptosafe/internal/safety"
)

// EmergencyDetector is the pre-analysis safety gate.
type EmergencyDetector interface {
	DetectConversation(turns []safety.Turn) safety.EmergencyResult
}

type Analyzer interface {
	Analyze(ctx context.Context, conversation []analysis.Message, opts analysis.Options) analysis.Result
}

// STTClient defines the interface for Speech-to-Text.
type STTClient interface {
	Transcribe(ctx context.Context, audio []byte, filename, lang string) (string, error)
}

// ReportService renders stored sessions and delivers them to the caregiver.
type ReportService interface {
	Render(s Session) ([]byte, error)
	SendSessionReport(ctx context.Context, s Session) error
	NotifyEmergency(ctx context.Context, s Session) error
}

type Service interface {
	AnalyzeTurn(ctx context.Context, req TurnRequest) (TurnResponse, error)
	TranscribeAudio(ctx context.Context, audio []byte, filename, lang string) (string, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	RenderReport(ctx context.Context, id uuid.UUID) ([]byte, *Session, error)
	ShareReport(ctx context.Context, id uuid.UUID) error
	// Wait blocks until background caregiver alerts have finished.
	Wait()
}

const alertTimeout = 15 * time.Second

type service struct {
	repo      Repository
	detector  EmergencyDetector
	analyzer  Analyzer
	stt       STTClient
	reportSvc ReportService
	logger    *zap.Logger
	now       func() time.Time

	// tracks background caregiver alerts
	wg sync.WaitGroup
}

// NewService wires the turn pipeline. repo, stt and report may be nil: the
// corresponding features then report ErrUnavailable, and turns are simply
// not persisted.
func NewService(repo Repository, detector EmergencyDetector, analyzer Analyzer, stt STTClient, report ReportService, logger *zap.Logger) Service {
	return &service{
		repo:      repo,
		detector:  detector,
		analyzer:  analyzer,
		stt:       stt,
		reportSvc: report,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// AnalyzeTurn runs the emergency detector first. On a match the analyzer is
// never called and Analysis stays nil. The only errors are request shape
// errors; everything downstream degrades instead of failing.
func (s *service) AnalyzeTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	if err := validateTurn(req.Messages); err != nil {
		return TurnResponse{}, err
	}

	var resp TurnResponse
	resp.Emergency = s.detector.DetectConversation(toTurns(req.Messages))
	if !resp.Emergency.IsEmergency {
		res := s.analyzer.Analyze(ctx, req.Messages, analysis.Options{
			Image:    req.Image,
			Language: req.Language,
		})
		resp.Analysis = &res
	}

	sess := newSession(req, resp, s.now())
	if resp.Emergency.IsEmergency {
		s.logger.Warn("emergency detected",
			zap.String("type", resp.Emergency.EmergencyType),
			zap.String("user_id", req.UserID),
		)
		s.alertCaregiver(ctx, *sess)
	}

	if s.persist(ctx, sess) {
		resp.SessionID = sess.ID.String()
	}
	return resp, nil
}

func (s *service) persist(ctx context.Context, sess *Session) bool {
	if s.repo == nil || sess.UserID == "" {
		return false
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		s.logger.Error("failed to save session",
			zap.String("user_id", sess.UserID),
			zap.Error(err),
		)
		return false
	}
	s.logger.Info("session saved",
		zap.String("session_id", sess.ID.String()),
		zap.String("user_id", sess.UserID),
		zap.Int("risk_score", sess.RiskScore),
		zap.String("risk_level", string(sess.RiskLevel)),
	)
	return true
}

// alertCaregiver delivers the alert in the background so the emergency
// response is never delayed by Telegram.
func (s *service) alertCaregiver(ctx context.Context, sess Session) {
	if s.reportSvc == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		defer cancel()

		if err := s.reportSvc.NotifyEmergency(bgCtx, sess); err != nil {
			s.logger.Error("failed to alert caregiver", zap.Error(err))
		}
	}()
}

func (s *service) TranscribeAudio(ctx context.Context, audio []byte, filename, lang string) (string, error) {
	if s.stt == nil {
		return "", fmt.Errorf("%w: speech-to-text", ErrUnavailable)
	}
	return s.stt.Transcribe(ctx, audio, filename, lang)
}

func (s *service) ListSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: session storage", ErrUnavailable)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidTurn)
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: session storage", ErrUnavailable)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) RenderReport(ctx context.Context, id uuid.UUID) ([]byte, *Session, error) {
	if s.reportSvc == nil {
		return nil, nil, fmt.Errorf("%w: reports", ErrUnavailable)
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	pdf, err := s.reportSvc.Render(*sess)
	if err != nil {
		return nil, nil, err
	}
	return pdf, sess, nil
}

func (s *service) ShareReport(ctx context.Context, id uuid.UUID) error {
	if s.reportSvc == nil {
		return fmt.Errorf("%w: caregiver channel", ErrUnavailable)
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return s.reportSvc.SendSessionReport(ctx, *sess)
}

func (s *service) Wait() { s.wg.Wait() }

func validateTurn(msgs []analysis.Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("%w: messages array is required", ErrInvalidTurn)
	}
	if msgs[len(msgs)-1].Role != analysis.RoleUser {
		return fmt.Errorf("%w: last message must be from user", ErrInvalidTurn)
	}
	return nil
}

func toTurns(msgs []analysis.Message) []safety.Turn {
	turns := make([]safety.Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = safety.Turn{Role: string(m.Role), Content: m.Content}
	}
	return turns
}
