package safety

import "strings"

// EmergencyResult is the outcome of scanning one user utterance.
type EmergencyResult struct {
	IsEmergency   bool   `json:"isEmergency"`
	EmergencyType string `json:"emergencyType,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Turn is the minimal view of a conversation message the detector needs.
type Turn struct {
	Role    string
	Content string
}

// Detector matches text against a Registry. It holds no mutable state and is
// safe for concurrent use.
type Detector struct {
	registry *Registry
}

// NewDetector returns a detector over reg, or over the built-in registry when
// reg is nil.
func NewDetector(reg *Registry) *Detector {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Detector{registry: reg}
}

// Detect returns the first rule whose keyword occurs in text, scanning rules
// and keywords in declaration order. Matching is case-insensitive substring
// matching, so negations such as "no chest pain" still trigger.
func (d *Detector) Detect(text string) EmergencyResult {
	if text == "" {
		return EmergencyResult{}
	}
	lower := strings.ToLower(text)

	for _, rule := range d.registry.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return EmergencyResult{
					IsEmergency:   true,
					EmergencyType: rule.Label,
					Message:       rule.Message,
				}
			}
		}
	}
	return EmergencyResult{}
}

// DetectConversation scans the latest user turn only.
func (d *Detector) DetectConversation(turns []Turn) EmergencyResult {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			return d.Detect(turns[i].Content)
		}
	}
	return EmergencyResult{}
}

var defaultDetector = NewDetector(nil)

// DetectEmergency runs the built-in registry against text.
func DetectEmergency(text string) EmergencyResult {
	return defaultDetector.Detect(text)
}
