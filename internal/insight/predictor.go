// Package insight looks across a user's stored sessions for recurring
// symptom patterns and a 30-day risk estimate.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"symptosafe/internal/analysis"
	"symptosafe/internal/consultation"
	"symptosafe/internal/logging"
)

const DefaultTimeout = 25 * time.Second

const systemPrompt = `You are a health pattern analysis assistant. Analyse the user's symptom history to identify patterns and estimate potential health risks.

Your task:
1. Identify recurring patterns (for example symptoms on specific days, at certain times or after certain activities).
2. Estimate a 30-day risk score (0-100) for developing a chronic condition based on the trend.
3. Give one actionable recommendation.

Respond with a single JSON object and nothing else:
{
  "insights": {
    "pattern": "Description of the identified pattern",
    "riskScore": 0-100,
    "recommendation": "Specific actionable advice",
    "confidence": 0-100
  },
  "riskScore": 0-100
}

Guidelines:
- Look for temporal patterns (day of week, time of day).
- Consider symptom frequency and severity trends.
- Identify possible environmental or lifestyle triggers.
- Be conservative with risk scores.`

type Insights struct {
	Pattern        string  `json:"pattern"`
	RiskScore      float64 `json:"riskScore"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
}

type Prediction struct {
	Insights  Insights `json:"insights"`
	RiskScore float64  `json:"riskScore"`
}

func insufficientData() Prediction {
	return Prediction{Insights: Insights{
		Pattern:        "Insufficient data for pattern analysis",
		Recommendation: "Continue logging symptoms to enable predictive insights",
	}}
}

func unavailable() Prediction {
	return Prediction{
		Insights: Insights{
			Pattern:        "Unable to analyze patterns at this time",
			RiskScore:      25,
			Recommendation: "Continue logging symptoms and consult a healthcare provider if symptoms persist",
			Confidence:     30,
		},
		RiskScore: 25,
	}
}

type Predictor struct {
	reasoner analysis.Reasoner
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPredictor(r analysis.Reasoner, timeout time.Duration, logger *zap.Logger) *Predictor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Predictor{reasoner: r, timeout: timeout, logger: logging.OrNop(logger)}
}

// Predict does not fail. Without sessions it reports insufficient data and
// any reasoning problem yields a conservative default.
func (p *Predictor) Predict(ctx context.Context, sessions []consultation.Session) Prediction {
	if len(sessions) == 0 {
		return insufficientData()
	}

	pred, err := p.predict(ctx, sessions)
	if err != nil {
		p.logger.Warn("pattern prediction failed", zap.Int("sessions", len(sessions)), zap.Error(err))
		return unavailable()
	}
	return pred
}

func (p *Predictor) predict(ctx context.Context, sessions []consultation.Session) (Prediction, error) {
	if p.reasoner == nil {
		return Prediction{}, analysis.ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.reasoner.Reason(ctx, analysis.Request{
		SystemPrompt: systemPrompt,
		Messages: []analysis.Message{{
			Role:    analysis.RoleUser,
			Content: "Analyze these symptom sessions and identify patterns:\n\n" + Summarize(sessions),
		}},
	})
	if err != nil {
		return Prediction{}, err
	}
	return parseReply(raw)
}

// Summarize renders sessions in the order given, one block per session.
func Summarize(sessions []consultation.Session) string {
	blocks := make([]string, 0, len(sessions))
	for i, s := range sessions {
		var b strings.Builder
		fmt.Fprintf(&b, "Session %d (%s):\n", i+1, s.CreatedAt.UTC().Format("Mon 2006-01-02 15:04 MST"))

		risk, conditions := "unknown", "none"
		if s.RiskLevel != "" {
			risk = string(s.RiskLevel)
		}
		if s.Analysis != nil {
			if s.Analysis.RiskLevel != "" {
				risk = string(s.Analysis.RiskLevel)
			}
			names := make([]string, 0, len(s.Analysis.PossibleConditions))
			for _, c := range s.Analysis.PossibleConditions {
				names = append(names, c.Name)
			}
			if len(names) > 0 {
				conditions = strings.Join(names, ", ")
			}
		}
		fmt.Fprintf(&b, "- Risk Level: %s\n", risk)
		fmt.Fprintf(&b, "- Conditions: %s\n", conditions)
		if s.Emergency != nil && s.Emergency.IsEmergency {
			fmt.Fprintf(&b, "- Emergency: %s\n", s.Emergency.EmergencyType)
		}

		msgs := make([]string, 0, len(s.Messages))
		for _, m := range s.Messages {
			msgs = append(msgs, m.Content)
		}
		if len(msgs) == 0 {
			b.WriteString("- Messages: none")
		} else {
			b.WriteString("- Messages: " + strings.Join(msgs, " | "))
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

type reply struct {
	Insights *struct {
		Pattern        *string  `json:"pattern"`
		RiskScore      *float64 `json:"riskScore"`
		Recommendation *string  `json:"recommendation"`
		Confidence     *float64 `json:"confidence"`
	} `json:"insights"`
	RiskScore *float64 `json:"riskScore"`
}

func parseReply(raw string) (Prediction, error) {
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Prediction{}, errors.New("no JSON object in prediction reply")
	}
	var r reply
	if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err != nil {
		return Prediction{}, fmt.Errorf("decode prediction reply: %w", err)
	}

	out := Prediction{
		Insights: Insights{
			Pattern:        "Pattern analysis in progress",
			RiskScore:      25,
			Recommendation: "Continue monitoring symptoms",
			Confidence:     50,
		},
		RiskScore: 25,
	}
	if in := r.Insights; in != nil {
		if in.Pattern != nil && strings.TrimSpace(*in.Pattern) != "" {
			out.Insights.Pattern = strings.TrimSpace(*in.Pattern)
		}
		if in.RiskScore != nil {
			out.Insights.RiskScore = clamp(*in.RiskScore)
		}
		if in.Recommendation != nil && strings.TrimSpace(*in.Recommendation) != "" {
			out.Insights.Recommendation = strings.TrimSpace(*in.Recommendation)
		}
		if in.Confidence != nil {
			out.Insights.Confidence = clamp(*in.Confidence)
		}
	}
	if r.RiskScore != nil {
		out.RiskScore = clamp(*r.RiskScore)
	}
	return out, nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}
