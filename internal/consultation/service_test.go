package consultation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"symptosafe/internal/analysis"
	"symptosafe/internal/safety"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	opts  analysis.Options
}

func (f *fakeAnalyzer) Analyze(_ context.Context, conv []analysis.Message, opts analysis.Options) analysis.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.opts = opts
	return analysis.Normalize(analysis.ClassifyFallback(analysis.LatestUserText(conv)))
}

type memRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
	err      error
}

func newMemRepo() *memRepo { return &memRepo{sessions: map[uuid.UUID]Session{}} }

func (m *memRepo) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memRepo) ListByUser(_ context.Context, userID string, _ int) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Session{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeReport struct {
	mu      sync.Mutex
	alerts  []Session
	shared  []Session
	sendErr error
}

func (f *fakeReport) Render(s Session) ([]byte, error) {
	return []byte("%PDF-" + s.ID.String()), nil
}

func (f *fakeReport) SendSessionReport(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shared = append(f.shared, s)
	return f.sendErr
}

func (f *fakeReport) NotifyEmergency(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, s)
	return f.sendErr
}

type testService struct {
	*service
	analyzer *fakeAnalyzer
	repo     *memRepo
	report   *fakeReport
}

func newTestService() testService {
	a := &fakeAnalyzer{}
	repo := newMemRepo()
	rep := &fakeReport{}
	svc := NewService(repo, safety.NewDetector(nil), a, nil, rep, nil).(*service)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return testService{service: svc, analyzer: a, repo: repo, report: rep}
}

func userMessages(texts ...string) []analysis.Message {
	msgs := make([]analysis.Message, 0, len(texts))
	for i, t := range texts {
		role := analysis.RoleUser
		if i%2 == 1 {
			role = analysis.RoleAssistant
		}
		msgs = append(msgs, analysis.Message{Role: role, Content: t})
	}
	return msgs
}

func TestAnalyzeTurn_EmergencyShortCircuits(t *testing.T) {
	ts := newTestService()

	resp, err := ts.AnalyzeTurn(context.Background(), TurnRequest{
		Messages: userMessages("My father is having crushing chest pain and his left arm is numb"),
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	ts.wg.Wait()

	if !resp.Emergency.IsEmergency || resp.Emergency.EmergencyType != "Cardiac Emergency" {
		t.Errorf("unexpected emergency result %+v", resp.Emergency)
	}
	if resp.Analysis != nil {
		t.Error("expected no analysis for an emergency turn")
	}
	if ts.analyzer.calls != 0 {
		t.Errorf("expected analyzer not to be called, got %d calls", ts.analyzer.calls)
	}
	if len(ts.report.alerts) != 1 {
		t.Fatalf("expected one caregiver alert, got %d", len(ts.report.alerts))
	}

	id, err := uuid.Parse(resp.SessionID)
	if err != nil {
		t.Fatalf("expected a session id, got %q", resp.SessionID)
	}
	saved := ts.repo.sessions[id]
	if saved.RiskScore != 100 || saved.RiskLevel != analysis.RiskCritical || saved.Emergency == nil {
		t.Errorf("unexpected stored session %+v", saved)
	}
}

func TestAnalyzeTurn_OnlyLatestUserMessageIsScreened(t *testing.T) {
	ts := newTestService()

	resp, err := ts.AnalyzeTurn(context.Background(), TurnRequest{
		Messages: userMessages("I had chest pain last year", "Is it happening now?", "No, today it is just a mild headache"),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Emergency.IsEmergency {
		t.Errorf("expected the latest message to decide, got %+v", resp.Emergency)
	}
	if resp.Analysis == nil || ts.analyzer.calls != 1 {
		t.Fatal("expected the analyzer to run once")
	}
}

func TestAnalyzeTurn_NonEmergency(t *testing.T) {
	ts := newTestService()
	img := &analysis.Image{Data: []byte{1}, MIMEType: "image/png"}

	resp, err := ts.AnalyzeTurn(context.Background(), TurnRequest{
		Messages: userMessages("I have had a fever for two days"),
		Image:    img,
		Language: "hi",
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if resp.Emergency.IsEmergency || resp.Emergency.EmergencyType != "" {
		t.Errorf("expected a bare non-emergency result, got %+v", resp.Emergency)
	}
	if resp.Analysis == nil || resp.Analysis.Source != analysis.SourceFallback {
		t.Fatalf("unexpected analysis %+v", resp.Analysis)
	}
	if ts.analyzer.opts.Image != img || ts.analyzer.opts.Language != "hi" {
		t.Errorf("expected image and language to be forwarded, got %+v", ts.analyzer.opts)
	}
	if len(ts.report.alerts) != 0 {
		t.Error("expected no caregiver alert")
	}

	id := uuid.MustParse(resp.SessionID)
	saved := ts.repo.sessions[id]
	if saved.RiskScore != 50 || saved.PrimaryCondition == nil || *saved.PrimaryCondition != "Infection-related illness" {
		t.Errorf("unexpected stored session %+v", saved)
	}
	if saved.UserMessage != "I have had a fever for two days" || !saved.CreatedAt.Equal(ts.now()) {
		t.Errorf("unexpected stored metadata %+v", saved)
	}
}

func TestAnalyzeTurn_AnonymousTurnNotStored(t *testing.T) {
	ts := newTestService()
	resp, err := ts.AnalyzeTurn(context.Background(), TurnRequest{Messages: userMessages("headache")})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.SessionID != "" || len(ts.repo.sessions) != 0 {
		t.Error("expected anonymous turn not to be persisted")
	}
}

func TestAnalyzeTurn_SaveFailureIsNotFatal(t *testing.T) {
	ts := newTestService()
	ts.repo.err = errors.New("disk full")

	resp, err := ts.AnalyzeTurn(context.Background(), TurnRequest{
		Messages: userMessages("headache"),
		UserID:   "user-1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Analysis == nil || resp.SessionID != "" {
		t.Errorf("expected analysis without session id, got %+v", resp)
	}
}

func TestAnalyzeTurn_AlertFailureIsNotFatal(t *testing.T) {
	ts := newTestService()
	ts.report.sendErr = errors.New("telegram down")

	resp, err := ts.AnalyzeTurn(context.Background(), TurnRequest{Messages: userMessages("I want to kill myself")})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	ts.wg.Wait()
	if resp.Emergency.EmergencyType != "Mental Health Crisis" {
		t.Errorf("unexpected emergency %+v", resp.Emergency)
	}
}

func TestAnalyzeTurn_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		msgs []analysis.Message
	}{
		{"no messages", nil},
		{"last from assistant", userMessages("headache", "How long?")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestService()
			_, err := ts.AnalyzeTurn(context.Background(), TurnRequest{Messages: tt.msgs})
			if !errors.Is(err, ErrInvalidTurn) {
				t.Errorf("expected ErrInvalidTurn, got %v", err)
			}
			if ts.analyzer.calls != 0 {
				t.Error("expected analyzer not to run")
			}
		})
	}
}

func TestService_Reports(t *testing.T) {
	ts := newTestService()
	resp, err := ts.AnalyzeTurn(context.Background(), TurnRequest{Messages: userMessages("nausea"), UserID: "u"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	id := uuid.MustParse(resp.SessionID)

	pdf, sess, err := ts.RenderReport(context.Background(), id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sess.ID != id || string(pdf) != "%PDF-"+id.String() {
		t.Errorf("unexpected report for %s", sess.ID)
	}

	if err := ts.ShareReport(context.Background(), id); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(ts.report.shared) != 1 {
		t.Errorf("expected one shared report, got %d", len(ts.report.shared))
	}

	if err := ts.ShareReport(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Unconfigured(t *testing.T) {
	svc := NewService(nil, safety.NewDetector(nil), &fakeAnalyzer{}, nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.TranscribeAudio(ctx, []byte("x"), "a.webm", ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for transcription, got %v", err)
	}
	if _, err := svc.ListSessions(ctx, "u", 10); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for sessions, got %v", err)
	}
	if err := svc.ShareReport(ctx, uuid.New()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for sharing, got %v", err)
	}
	if _, err := svc.AnalyzeTurn(ctx, TurnRequest{Messages: userMessages("cough")}); err != nil {
		t.Errorf("expected turns to work without storage, got %v", err)
	}
}
