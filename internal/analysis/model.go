package analysis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// LatestUserText returns the content of the last user message, or "".
func LatestUserText(conversation []Message) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == RoleUser {
			return conversation[i].Content
		}
	}
	return ""
}

type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskCritical, RiskHigh, RiskMedium, RiskLow:
		return true
	}
	return false
}

// Score maps a risk level onto the 0-100 scale used for session trends.
func (r RiskLevel) Score() int {
	switch r {
	case RiskCritical:
		return 100
	case RiskHigh:
		return 75
	case RiskMedium:
		return 50
	default:
		return 25
	}
}

type Triage string

const (
	TriageEmergencyRoom       Triage = "EMERGENCY_ROOM"
	TriageUrgentCare          Triage = "URGENT_CARE"
	TriageRoutineConsultation Triage = "ROUTINE_CONSULTATION"
	TriageSelfCare            Triage = "SELF_CARE"
)

func (t Triage) Valid() bool {
	switch t {
	case TriageEmergencyRoom, TriageUrgentCare, TriageRoutineConsultation, TriageSelfCare:
		return true
	}
	return false
}

// Source tells the presentation layer where a result came from, so it can
// warn when the local fallback produced it.
type Source string

const (
	SourceReasoning Source = "reasoning"
	SourceFallback  Source = "fallback"
)

type Condition struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Description string  `json:"description"`
}

// Result is the structured assessment for one user turn.
type Result struct {
	PossibleConditions      []Condition `json:"possibleConditions"`
	Reasoning               []string    `json:"reasoning"`
	ConfidenceScore         float64     `json:"confidenceScore"`
	InformationCompleteness float64     `json:"informationCompleteness"`
	FollowUpQuestions       []string    `json:"followUpQuestions"`
	RiskLevel               RiskLevel   `json:"riskLevel"`
	Recommendation          []string    `json:"recommendation"`
	TriageRecommendation    Triage      `json:"triageRecommendation"`
	RedFlags                []string    `json:"redFlags"`
	SelfCareTips            []string    `json:"selfCareTips"`
	CommonTriggers          []string    `json:"commonTriggers"`
	TrackingAdvice          []string    `json:"trackingAdvice"`
	ClinicalNextSteps       []string    `json:"clinicalNextSteps"`
	Source                  Source      `json:"source"`
}

// ProbabilityTotal sums condition probabilities. Results are not
// renormalised, so callers that care about drift from 100 check this.
func (r Result) ProbabilityTotal() float64 {
	var total float64
	for _, c := range r.PossibleConditions {
		total += c.Probability
	}
	return total
}

// PrimaryCondition returns the name of the highest-probability condition.
func (r Result) PrimaryCondition() (string, bool) {
	if len(r.PossibleConditions) == 0 {
		return "", false
	}
	best := r.PossibleConditions[0]
	for _, c := range r.PossibleConditions[1:] {
		if c.Probability > best.Probability {
			best = c
		}
	}
	return best.Name, true
}

var ErrInvalidImage = errors.New("invalid image payload")

// Image is an optional picture attached to the latest user turn.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURI encodes the image for transports that take data URIs.
func (i *Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ParseImage accepts either a data URI or bare base64. The MIME type is taken
// from the URI when present, otherwise sniffed from the bytes.
func ParseImage(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	mime := ""
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, body, ok := strings.Cut(s[len("data:"):], ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: expected base64 data URI", ErrInvalidImage)
		}
		mime = strings.TrimSuffix(header, ";base64")
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, mime)
	}
	return &Image{Data: data, MIMEType: mime}, nil
}
