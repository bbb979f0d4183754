package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"symptosafe/internal/analysis"
)

type geminiReasoner struct {
	client *genai.Client
	model  string
}

func NewGeminiReasoner(ctx context.Context, apiKey, model, baseURL string) (analysis.Reasoner, error) {
	if apiKey == "" {
		return nil, analysis.ErrMissingCredential
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiReasoner{client: client, model: model}, nil
}

func (r *geminiReasoner) Reason(ctx context.Context, req analysis.Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	}

	resp, err := r.client.Models.GenerateContent(ctx, r.model, geminiContents(req), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.WriteString(part.Text)
		}
	}
	return out.String(), nil
}

// geminiContents maps the conversation onto user/model turns. System
// messages travel in SystemInstruction instead.
func geminiContents(req analysis.Request) []*genai.Content {
	imageAt := -1
	if req.Image != nil {
		imageAt = lastUserIndex(req.Messages)
	}

	out := make([]*genai.Content, 0, len(req.Messages))
	for i, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		switch m.Role {
		case analysis.RoleSystem:
			continue
		case analysis.RoleAssistant:
			role = genai.RoleModel
		}

		parts := []*genai.Part{genai.NewPartFromText(m.Content)}
		if i == imageAt {
			parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}
