package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidDocument = errors.New("invalid analysis document")

const (
	UnknownConditionName        = "Unknown condition"
	DefaultConditionDescription = "No additional description provided."

	// FollowUpThreshold is the completeness below which follow-up questions
	// are mandatory.
	FollowUpThreshold = 80
)

// DefaultFollowUpQuestions are synthesised when a result reports incomplete
// information but carries no questions of its own.
var DefaultFollowUpQuestions = []string{
	"When did your symptoms start, and are they getting better or worse?",
	"How severe are your symptoms on a scale from 1 to 10?",
	"Do you have any other symptoms, existing conditions or medications we should know about?",
}

// documentSchema is the minimal shape a reasoning reply must have before it
// is normalised. Everything else is optional and defaulted.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["possibleConditions"],
  "properties": {
    "possibleConditions": {
      "type": "array",
      "minItems": 1
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
})

// ParseDocument turns a raw reasoning reply into a normalised Result. The
// reply may be wrapped in a markdown code fence or surrounded by prose.
func ParseDocument(raw string) (Result, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return Result{}, fmt.Errorf("%w: no JSON object in response", ErrInvalidDocument)
	}

	schema, err := compiledSchema()
	if err != nil {
		return Result{}, fmt.Errorf("compile analysis schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return FromDocument(doc)
}

// FromDocument converts an untyped document into a normalised Result.
// possibleConditions must be a non-empty list; every other field is optional.
func FromDocument(doc map[string]any) (Result, error) {
	rawConditions, ok := doc["possibleConditions"].([]any)
	if !ok || len(rawConditions) == 0 {
		return Result{}, fmt.Errorf("%w: possibleConditions must be a non-empty list", ErrInvalidDocument)
	}

	conditions := make([]Condition, 0, len(rawConditions))
	for _, item := range rawConditions {
		conditions = append(conditions, conditionFrom(item))
	}

	// diagnosticConfidence is the current name; confidenceScore is accepted
	// from older prompts and loses when both are present.
	confidence, ok := number(doc["diagnosticConfidence"])
	if !ok {
		confidence, _ = number(doc["confidenceScore"])
	}
	completeness, _ := number(doc["informationCompleteness"])

	r := Result{
		PossibleConditions:      conditions,
		Reasoning:               stringList(doc["reasoning"]),
		ConfidenceScore:         confidence,
		InformationCompleteness: completeness,
		FollowUpQuestions:       stringList(doc["followUpQuestions"]),
		RiskLevel:               RiskLevel(strings.ToLower(strings.TrimSpace(str(doc["riskLevel"])))),
		Recommendation:          stringList(doc["recommendation"]),
		TriageRecommendation:    triageFrom(str(doc["triageRecommendation"])),
		RedFlags:                stringList(doc["redFlags"]),
		SelfCareTips:            stringList(doc["selfCareTips"]),
		CommonTriggers:          stringList(doc["commonTriggers"]),
		TrackingAdvice:          stringList(doc["trackingAdvice"]),
		ClinicalNextSteps:       stringList(doc["clinicalNextSteps"]),
		Source:                  SourceReasoning,
	}
	return Normalize(r), nil
}

// Normalize returns a copy of r with scores clamped to [0,100], enums
// defaulted, nil lists replaced by empty ones and follow-up questions
// synthesised when completeness is below FollowUpThreshold and none were
// given. Condition probabilities are clamped but not renormalised.
func Normalize(r Result) Result {
	out := r

	out.PossibleConditions = make([]Condition, len(r.PossibleConditions))
	for i, c := range r.PossibleConditions {
		if strings.TrimSpace(c.Name) == "" {
			c.Name = UnknownConditionName
		}
		if strings.TrimSpace(c.Description) == "" {
			c.Description = DefaultConditionDescription
		}
		c.Probability = clamp(c.Probability)
		out.PossibleConditions[i] = c
	}

	out.ConfidenceScore = clamp(r.ConfidenceScore)
	out.InformationCompleteness = clamp(r.InformationCompleteness)

	if !out.RiskLevel.Valid() {
		out.RiskLevel = RiskMedium
	}
	if !out.TriageRecommendation.Valid() {
		out.TriageRecommendation = TriageRoutineConsultation
	}
	if out.Source == "" {
		out.Source = SourceReasoning
	}

	out.Reasoning = copyList(r.Reasoning)
	out.FollowUpQuestions = copyList(r.FollowUpQuestions)
	out.Recommendation = copyList(r.Recommendation)
	out.RedFlags = copyList(r.RedFlags)
	out.SelfCareTips = copyList(r.SelfCareTips)
	out.CommonTriggers = copyList(r.CommonTriggers)
	out.TrackingAdvice = copyList(r.TrackingAdvice)
	out.ClinicalNextSteps = copyList(r.ClinicalNextSteps)

	if out.InformationCompleteness < FollowUpThreshold && len(out.FollowUpQuestions) == 0 {
		out.FollowUpQuestions = copyList(DefaultFollowUpQuestions)
	}
	return out
}

func conditionFrom(item any) Condition {
	switch v := item.(type) {
	case map[string]any:
		c := Condition{
			Name:        strings.TrimSpace(str(v["name"])),
			Description: strings.TrimSpace(str(v["description"])),
		}
		c.Probability, _ = number(v["probability"])
		return c
	case string:
		return Condition{Name: strings.TrimSpace(v)}
	default:
		return Condition{}
	}
}

func triageFrom(s string) Triage {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Triage(s)
}

// number accepts JSON numbers and numeric strings. Anything else, including
// NaN and infinities, counts as missing.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// stringList accepts a list of strings or a single string. Blank and
// non-string entries are dropped.
func stringList(v any) []string {
	switch l := v.(type) {
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return copyList(l)
	case string:
		if strings.TrimSpace(l) != "" {
			return []string{strings.TrimSpace(l)}
		}
	}
	return []string{}
}

func copyList(l []string) []string {
	out := make([]string, len(l))
	copy(out, l)
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

// extractJSONObject strips markdown fences and any prose around the outermost
// JSON object.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
