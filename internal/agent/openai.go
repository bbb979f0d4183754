package agent

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"symptosafe/internal/analysis"
)

type openAIReasoner struct {
	client *openai.Client
	model  string
}

// NewOpenAIReasoner talks to the chat completions API, or any compatible
// server when baseURL is set.
func NewOpenAIReasoner(apiKey, model, baseURL string) (analysis.Reasoner, error) {
	if apiKey == "" {
		return nil, analysis.ErrMissingCredential
	}
	return &openAIReasoner{
		client: openai.NewClientWithConfig(openAIConfig(apiKey, baseURL)),
		model:  model,
	}, nil
}

func openAIConfig(apiKey, baseURL string) openai.ClientConfig {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return cfg
}

func (r *openAIReasoner) Reason(ctx context.Context, req analysis.Request) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    openAIMessages(req),
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(req analysis.Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})

	imageAt := -1
	if req.Image != nil {
		imageAt = lastUserIndex(req.Messages)
	}

	for i, m := range req.Messages {
		role := string(m.Role)
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}

		if i == imageAt {
			out = append(out, openai.ChatCompletionMessage{
				Role: role,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: m.Content},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    req.Image.DataURI(),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			})
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
