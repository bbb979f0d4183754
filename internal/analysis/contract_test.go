package analysis

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDocument_FollowUpBackfill(t *testing.T) {
	raw := `{"possibleConditions":[{"name":"Migraine","probability":60},{"name":"Tension Headache","probability":40}],"diagnosticConfidence":72,"informationCompleteness":55,"riskLevel":"medium"}`

	got, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got.ConfidenceScore != 72 {
		t.Errorf("expected confidence 72, got %v", got.ConfidenceScore)
	}
	if got.InformationCompleteness != 55 {
		t.Errorf("expected completeness 55, got %v", got.InformationCompleteness)
	}
	if len(got.FollowUpQuestions) == 0 {
		t.Fatal("expected synthesised follow-up questions when completeness < 80")
	}
	if diff := cmp.Diff(DefaultFollowUpQuestions, got.FollowUpQuestions); diff != "" {
		t.Errorf("follow-up mismatch (-want +got):\n%s", diff)
	}
	if got.RiskLevel != RiskMedium || got.TriageRecommendation != TriageRoutineConsultation {
		t.Errorf("unexpected risk/triage: %s/%s", got.RiskLevel, got.TriageRecommendation)
	}
	if got.Source != SourceReasoning {
		t.Errorf("expected source reasoning, got %s", got.Source)
	}
	if got.PossibleConditions[0].Description != DefaultConditionDescription {
		t.Errorf("expected default description, got %q", got.PossibleConditions[0].Description)
	}
}

func TestParseDocument_NoBackfillWhenComplete(t *testing.T) {
	raw := `{"possibleConditions":[{"name":"Common cold","probability":100}],"confidenceScore":85,"informationCompleteness":90}`
	got, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(got.FollowUpQuestions) != 0 {
		t.Errorf("expected no follow-up questions, got %v", got.FollowUpQuestions)
	}
	if got.FollowUpQuestions == nil {
		t.Error("expected empty, non-nil follow-up list")
	}
}

func TestParseDocument_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "I'm sorry, I cannot help with that."},
		{"truncated", `{"possibleConditions":[{"name":"Flu"`},
		{"missing conditions", `{"reasoning":["x"],"confidenceScore":50}`},
		{"empty conditions", `{"possibleConditions":[]}`},
		{"conditions not a list", `{"possibleConditions":{"name":"Flu"}}`},
		{"array document", `[{"name":"Flu"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDocument(tt.raw); !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestParseDocument_CodeFence(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"possibleConditions\":[{\"name\":\"Gastritis\",\"probability\":100}],\"informationCompleteness\":85}\n```"
	got, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.PossibleConditions[0].Name != "Gastritis" {
		t.Errorf("expected Gastritis, got %q", got.PossibleConditions[0].Name)
	}
}

func TestFromDocument_AliasPrecedence(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want float64
	}{
		{"current only", map[string]any{"diagnosticConfidence": 61.0}, 61},
		{"legacy only", map[string]any{"confidenceScore": 33.0}, 33},
		{"both prefers current", map[string]any{"diagnosticConfidence": 61.0, "confidenceScore": 33.0}, 61},
		{"neither", map[string]any{}, 0},
		{"numeric string", map[string]any{"diagnosticConfidence": "58%"}, 58},
		{"garbage current falls back to legacy", map[string]any{"diagnosticConfidence": "high", "confidenceScore": 20.0}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.doc["possibleConditions"] = []any{map[string]any{"name": "X", "probability": 100.0}}
			got, err := FromDocument(tt.doc)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got.ConfidenceScore != tt.want {
				t.Errorf("expected confidence %v, got %v", tt.want, got.ConfidenceScore)
			}
		})
	}
}

func TestFromDocument_ClampsAndDefaults(t *testing.T) {
	doc := map[string]any{
		"possibleConditions": []any{
			map[string]any{"probability": 140.0},
			map[string]any{"name": "  Viral pharyngitis ", "probability": -5.0, "description": "Sore throat from a virus"},
			"Strep throat",
			42.0,
		},
		"diagnosticConfidence":    250.0,
		"informationCompleteness": -12.0,
		"riskLevel":               "SEVERE",
		"triageRecommendation":    "urgent care",
		"reasoning":               "single reason",
		"redFlags":                []any{"a", 3.0, " ", "b"},
	}

	got, err := FromDocument(doc)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	wantConditions := []Condition{
		{Name: UnknownConditionName, Probability: 100, Description: DefaultConditionDescription},
		{Name: "Viral pharyngitis", Probability: 0, Description: "Sore throat from a virus"},
		{Name: "Strep throat", Probability: 0, Description: DefaultConditionDescription},
		{Name: UnknownConditionName, Probability: 0, Description: DefaultConditionDescription},
	}
	if diff := cmp.Diff(wantConditions, got.PossibleConditions); diff != "" {
		t.Errorf("conditions mismatch (-want +got):\n%s", diff)
	}
	if got.ConfidenceScore != 100 {
		t.Errorf("expected confidence clamped to 100, got %v", got.ConfidenceScore)
	}
	if got.InformationCompleteness != 0 {
		t.Errorf("expected completeness clamped to 0, got %v", got.InformationCompleteness)
	}
	if got.RiskLevel != RiskMedium {
		t.Errorf("expected unknown risk to default to medium, got %s", got.RiskLevel)
	}
	if got.TriageRecommendation != TriageUrgentCare {
		t.Errorf("expected URGENT_CARE, got %s", got.TriageRecommendation)
	}
	if diff := cmp.Diff([]string{"single reason"}, got.Reasoning); diff != "" {
		t.Errorf("reasoning mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got.RedFlags); diff != "" {
		t.Errorf("red flags mismatch (-want +got):\n%s", diff)
	}
	for name, l := range map[string][]string{
		"recommendation": got.Recommendation, "selfCareTips": got.SelfCareTips,
		"commonTriggers": got.CommonTriggers, "trackingAdvice": got.TrackingAdvice,
		"clinicalNextSteps": got.ClinicalNextSteps,
	} {
		if l == nil || len(l) != 0 {
			t.Errorf("expected %s to default to an empty list, got %#v", name, l)
		}
	}
}

func TestNormalize_DoesNotRenormaliseOrMutate(t *testing.T) {
	in := Result{
		PossibleConditions: []Condition{
			{Name: "A", Probability: 50, Description: "a"},
			{Name: "B", Probability: 30, Description: "b"},
		},
		Reasoning:               []string{"r"},
		InformationCompleteness: 95,
		RiskLevel:               RiskLow,
		TriageRecommendation:    TriageSelfCare,
	}
	out := Normalize(in)

	if out.ProbabilityTotal() != 80 {
		t.Errorf("expected drift to be preserved (80), got %v", out.ProbabilityTotal())
	}
	out.PossibleConditions[0].Name = "changed"
	out.Reasoning[0] = "changed"
	if in.PossibleConditions[0].Name != "A" || in.Reasoning[0] != "r" {
		t.Error("Normalize must not share backing arrays with its input")
	}
	if out.RiskLevel != RiskLow || out.TriageRecommendation != TriageSelfCare {
		t.Errorf("valid enums must be kept, got %s/%s", out.RiskLevel, out.TriageRecommendation)
	}
}

func TestResult_PrimaryCondition(t *testing.T) {
	r := Result{PossibleConditions: []Condition{{Name: "A", Probability: 20}, {Name: "B", Probability: 65}, {Name: "C", Probability: 15}}}
	if name, ok := r.PrimaryCondition(); !ok || name != "B" {
		t.Errorf("expected B, got %q (%v)", name, ok)
	}
	if _, ok := (Result{}).PrimaryCondition(); ok {
		t.Error("expected no primary condition for empty result")
	}
}

func TestRiskLevel_Score(t *testing.T) {
	tests := map[RiskLevel]int{RiskCritical: 100, RiskHigh: 75, RiskMedium: 50, RiskLow: 25, "": 25}
	for level, want := range tests {
		if got := level.Score(); got != want {
			t.Errorf("%q.Score() = %d, want %d", level, got, want)
		}
	}
}
