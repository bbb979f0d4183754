package agent

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/language"

	"symptosafe/internal/analysis"
)

// STTClient turns a recorded voice message into text.
type STTClient interface {
	Transcribe(ctx context.Context, audio []byte, filename, lang string) (string, error)
}

type whisperClient struct {
	client *openai.Client
	model  string
}

func NewWhisperClient(apiKey, model, baseURL string) (STTClient, error) {
	if apiKey == "" {
		return nil, analysis.ErrMissingCredential
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &whisperClient{
		client: openai.NewClientWithConfig(openAIConfig(apiKey, baseURL)),
		model:  model,
	}, nil
}

func (c *whisperClient) Transcribe(ctx context.Context, audio []byte, filename, lang string) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}

	req := openai.AudioRequest{
		Model:    c.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	}
	// Whisper takes ISO-639-1 codes only.
	if strings.TrimSpace(lang) != "" {
		if base, conf := analysis.ResolveLanguage(lang).Base(); conf != language.No {
			req.Language = base.String()
		}
	}

	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
