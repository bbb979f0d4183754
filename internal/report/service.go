package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"symptosafe/internal/analysis"
	"symptosafe/internal/consultation"
	"symptosafe/internal/logging"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName, caption string) error
}

// DefaultFontPaths are the usual DejaVu locations on Alpine and Debian
// images. DejaVu covers Latin, Cyrillic and Greek; Devanagari needs a font
// supplied through REPORT_FONT_PATH.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	fontName   = "Report"
	textWidth  = 500
	pageBottom = 790
	disclaimer = "This report was generated by an automated symptom assistant. It is not a diagnosis and does not replace a healthcare professional."
)

type Service struct {
	tgClient        TelegramClient
	caregiverChatID int64
	fontPaths       []string
	logger          *zap.Logger
}

// NewService returns a report service. tg may be nil or caregiverChatID zero,
// in which case rendering still works and delivery is disabled.
func NewService(tg TelegramClient, caregiverChatID int64, fontPath string, logger *zap.Logger) *Service {
	paths := DefaultFontPaths
	if fontPath != "" {
		paths = append([]string{fontPath}, DefaultFontPaths...)
	}
	return &Service{
		tgClient:        tg,
		caregiverChatID: caregiverChatID,
		fontPaths:       paths,
		logger:          logging.OrNop(logger),
	}
}

func (s *Service) caregiverEnabled() bool {
	return s.tgClient != nil && s.caregiverChatID != 0
}

// NotifyEmergency sends a plain-text alert to the caregiver chat. It is a
// no-op when no caregiver is configured.
func (s *Service) NotifyEmergency(ctx context.Context, sess consultation.Session) error {
	if !s.caregiverEnabled() || sess.Emergency == nil {
		return nil
	}
	if err := s.tgClient.SendMessage(ctx, s.caregiverChatID, emergencyAlert(sess)); err != nil {
		return fmt.Errorf("send emergency alert: %w", err)
	}
	s.logger.Info("caregiver alerted", zap.String("type", sess.Emergency.EmergencyType))
	return nil
}

func (s *Service) SendSessionReport(ctx context.Context, sess consultation.Session) error {
	if !s.caregiverEnabled() {
		return fmt.Errorf("%w: caregiver chat", consultation.ErrUnavailable)
	}

	pdf, err := s.Render(sess)
	if err != nil {
		return err
	}

	fileName := fmt.Sprintf("report_%s.pdf", sess.ID.String())
	caption := fmt.Sprintf("Symptom report %s (risk: %s)", sess.CreatedAt.Format("2006-01-02 15:04 MST"), sess.RiskLevel)
	if err := s.tgClient.SendDocument(ctx, s.caregiverChatID, pdf, fileName, caption); err != nil {
		s.logger.Error("failed to send report", zap.String("session_id", sess.ID.String()), zap.Error(err))
		return fmt.Errorf("send report: %w", err)
	}
	s.logger.Info("report sent", zap.String("session_id", sess.ID.String()))
	return nil
}

// Render lays out a stored session as an A4 PDF.
func (s *Service) Render(sess consultation.Session) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := s.loadFont(pdf); err != nil {
		return nil, err
	}

	w := &writer{pdf: pdf}
	w.text(20, "Symptom Assessment Report")
	w.gap(10)

	w.text(11, "Date: "+sess.CreatedAt.Format("02 Jan 2006 15:04 MST"))
	w.text(11, "Session: "+sess.ID.String())
	if sess.Language != "" {
		w.text(11, "Language: "+analysis.LanguageName(analysis.ResolveLanguage(sess.Language)))
	}
	if sess.UserMessage != "" {
		w.paragraph(11, "Reported symptoms: "+sess.UserMessage)
	}
	w.gap(10)

	switch {
	case sess.Emergency != nil:
		w.text(14, "EMERGENCY: "+sess.Emergency.EmergencyType)
		w.paragraph(11, sess.Emergency.Message)
	case sess.Analysis != nil:
		writeAnalysis(w, sess.Analysis)
	}

	w.gap(15)
	w.paragraph(9, disclaimer)

	if w.err != nil {
		return nil, fmt.Errorf("layout report: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont(fontName, path); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no font paths configured")
	}
	return fmt.Errorf("%w: no usable report font: %v", consultation.ErrUnavailable, lastErr)
}

func writeAnalysis(w *writer, res *analysis.Result) {
	w.text(14, "Possible conditions")
	for _, c := range res.PossibleConditions {
		w.paragraph(11, fmt.Sprintf("- %s (%.0f%%): %s", c.Name, c.Probability, c.Description))
	}
	w.gap(8)

	w.text(11, fmt.Sprintf("Confidence: %.0f%%   Information completeness: %.0f%%", res.ConfidenceScore, res.InformationCompleteness))
	w.text(11, fmt.Sprintf("Risk level: %s   Triage: %s", res.RiskLevel, triageLabel(res.TriageRecommendation)))
	if res.Source == analysis.SourceFallback {
		w.paragraph(10, "Note: produced by the offline keyword classifier because the analysis service was unavailable.")
	}
	w.gap(8)

	w.list("Follow-up questions", res.FollowUpQuestions)
	w.list("Recommendations", res.Recommendation)
	w.list("Red flags", res.RedFlags)
	w.list("Self-care tips", res.SelfCareTips)
	w.list("Clinical next steps", res.ClinicalNextSteps)
}

func triageLabel(t analysis.Triage) string {
	switch t {
	case analysis.TriageEmergencyRoom:
		return "Emergency room"
	case analysis.TriageUrgentCare:
		return "Urgent care"
	case analysis.TriageRoutineConsultation:
		return "Routine consultation"
	case analysis.TriageSelfCare:
		return "Self care"
	default:
		return string(t)
	}
}

func emergencyAlert(sess consultation.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EMERGENCY ALERT: %s\n", sess.Emergency.EmergencyType)
	fmt.Fprintf(&b, "%s\n\n", sess.Emergency.Message)
	if sess.UserID != "" {
		fmt.Fprintf(&b, "User: %s\n", sess.UserID)
	}
	fmt.Fprintf(&b, "Time: %s\n", sess.CreatedAt.Format("2006-01-02 15:04 MST"))
	if sess.UserMessage != "" {
		fmt.Fprintf(&b, "Message: %q", sess.UserMessage)
	}
	return b.String()
}

// writer keeps the first layout error and starts a new page when the cursor
// reaches the bottom margin.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *writer) text(size float64, s string) {
	if w.err != nil {
		return
	}
	if w.pdf.GetY() > pageBottom {
		w.pdf.AddPage()
	}
	if w.err = w.pdf.SetFont(fontName, "", size); w.err != nil {
		return
	}
	if w.err = w.pdf.Cell(nil, s); w.err != nil {
		return
	}
	w.pdf.Br(size + 4)
}

func (w *writer) paragraph(size float64, s string) {
	if w.err != nil {
		return
	}
	if w.err = w.pdf.SetFont(fontName, "", size); w.err != nil {
		return
	}
	lines, err := w.pdf.SplitText(s, textWidth)
	if err != nil {
		lines = []string{s}
	}
	for _, l := range lines {
		w.text(size, l)
	}
}

func (w *writer) list(title string, items []string) {
	if len(items) == 0 {
		return
	}
	w.text(13, title)
	for _, it := range items {
		w.paragraph(11, "- "+it)
	}
	w.gap(6)
}

func (w *writer) gap(h float64) {
	if w.err == nil {
		w.pdf.Br(h)
	}
}
