package analysis

import (
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestResolveLanguage(t *testing.T) {
	tests := map[string]language.Tag{
		"":        language.English,
		"   ":     language.English,
		"en":      language.English,
		"hi":      language.Hindi,
		"not a ∂": language.English,
	}
	for in, want := range tests {
		if got := ResolveLanguage(in); got != want {
			t.Errorf("ResolveLanguage(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSystemPrompt_Locale(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"", "English (en)"},
		{"hi", "Hindi (hi)"},
		{"es", "Spanish (es)"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			p := SystemPrompt(tt.lang)
			if !strings.HasPrefix(p, systemPrompt) {
				t.Error("expected base prompt first")
			}
			if !strings.Contains(p, tt.want) {
				t.Errorf("expected locale instruction naming %q", tt.want)
			}
			if !strings.Contains(p, "informationCompleteness") {
				t.Error("expected the document shape in the prompt")
			}
		})
	}
}
