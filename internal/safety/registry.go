// Package safety holds the emergency pattern registry and the detector that
// runs on every user turn before any AI analysis.
package safety

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidRegistry = errors.New("invalid emergency registry")

// EmergencyRule maps one emergency category to the literal phrases that
// trigger it.
type EmergencyRule struct {
	ID       string   `yaml:"id" json:"id"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Label    string   `yaml:"label" json:"label"`
	Message  string   `yaml:"message" json:"message"`
}

// Registry is an immutable, ordered list of emergency rules. Declaration
// order is the tie-break when text matches several categories.
type Registry struct {
	rules []EmergencyRule
}

// NewRegistry validates and copies the given rules. Keywords are trimmed and
// lower-cased so the detector can match them against lower-cased input.
func NewRegistry(rules []EmergencyRule) (*Registry, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidRegistry)
	}

	seen := make(map[string]bool, len(rules))
	out := make([]EmergencyRule, 0, len(rules))
	for i, r := range rules {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: rule %d has no id", ErrInvalidRegistry, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRegistry, id)
		}
		seen[id] = true

		if strings.TrimSpace(r.Label) == "" || strings.TrimSpace(r.Message) == "" {
			return nil, fmt.Errorf("%w: rule %q needs a label and a message", ErrInvalidRegistry, id)
		}

		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("%w: rule %q has no keywords", ErrInvalidRegistry, id)
		}

		out = append(out, EmergencyRule{
			ID:       id,
			Keywords: keywords,
			Label:    strings.TrimSpace(r.Label),
			Message:  strings.TrimSpace(r.Message),
		})
	}
	return &Registry{rules: out}, nil
}

// Rules returns a copy of the registry contents in declaration order.
func (r *Registry) Rules() []EmergencyRule {
	out := make([]EmergencyRule, len(r.rules))
	for i, rule := range r.rules {
		rule.Keywords = append([]string(nil), rule.Keywords...)
		out[i] = rule
	}
	return out
}

func (r *Registry) Len() int { return len(r.rules) }

type registryFile struct {
	Version string          `yaml:"version"`
	Rules   []EmergencyRule `yaml:"rules"`
}

// ParseRegistry decodes a YAML registry document:
//
//	version: "2024-06"
//	rules:
//	  - id: chest_pain
//	    label: Cardiac Emergency
//	    message: Call emergency services immediately!
//	    keywords: [chest pain, heart attack]
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	return NewRegistry(f.Rules)
}

// LoadRegistry reads a YAML registry from disk. An empty path yields the
// built-in registry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// DefaultRegistry returns the built-in emergency categories.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("built-in emergency registry: %v", err))
	}
	return r
}

var defaultRules = []EmergencyRule{
	{
		ID: "chest_pain",
		Keywords: []string{
			"chest pain", "heart attack", "cardiac arrest", "crushing chest",
			"chest pressure", "chest tightness", "pain in chest",
		},
		Label:   "Cardiac Emergency",
		Message: "Chest pain can indicate a heart attack. Call emergency services immediately!",
	},
	{
		ID: "stroke",
		Keywords: []string{
			"stroke", "face drooping", "arm weakness", "speech difficulty",
			"sudden numbness", "sudden confusion", "trouble speaking",
			"vision problems sudden", "severe headache sudden",
		},
		Label:   "Stroke",
		Message: "These symptoms may indicate a stroke. Call emergency services immediately!",
	},
	{
		ID: "breathing",
		Keywords: []string{
			"can't breathe", "cannot breathe", "difficulty breathing",
			"shortness of breath severe", "gasping for air", "choking",
			"suffocating", "breathing problem",
		},
		Label:   "Respiratory Emergency",
		Message: "Severe breathing difficulty requires immediate medical attention!",
	},
	{
		ID: "bleeding",
		Keywords: []string{
			"severe bleeding", "heavy bleeding", "bleeding won't stop",
			"blood gushing", "hemorrhage", "bleeding profusely",
		},
		Label:   "Severe Bleeding",
		Message: "Severe bleeding requires immediate medical attention!",
	},
	{
		ID: "suicide",
		Keywords: []string{
			"want to die", "kill myself", "suicide", "end my life",
			"self harm", "hurt myself", "don't want to live",
		},
		Label:   "Mental Health Crisis",
		Message: "Please call emergency services or a suicide prevention hotline immediately. You are not alone.",
	},
	{
		ID: "seizure",
		Keywords: []string{
			"seizure", "convulsion", "fitting", "uncontrollable shaking",
			"loss of consciousness", "collapsed",
		},
		Label:   "Seizure",
		Message: "Active seizures require immediate medical attention!",
	},
	{
		ID: "overdose",
		Keywords: []string{
			"overdose", "took too many pills", "poisoning", "swallowed poison",
			"drug overdose", "medication overdose",
		},
		Label:   "Overdose/Poisoning",
		Message: "Overdose or poisoning requires immediate emergency care!",
	},
	{
		ID: "vomiting_blood",
		Keywords: []string{
			"vomiting blood", "throwing up blood", "blood in vomit",
			"coughing up blood", "hematemesis",
		},
		Label:   "Internal Bleeding",
		Message: "Vomiting blood indicates serious internal bleeding. Seek emergency care immediately!",
	},
	{
		ID: "severe_burns",
		Keywords: []string{
			"severe burn", "third degree burn", "burned badly",
			"skin peeling off", "large burn",
		},
		Label:   "Severe Burns",
		Message: "Severe burns require immediate medical attention!",
	},
}
