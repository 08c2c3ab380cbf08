package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/media"
)

// Engine sends one prompt plus inline media blobs to a Gemini model and
// returns the first text part of the answer.
type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Generate(ctx context.Context, prompt string, items []media.Item) (string, error) {
	if e.APIKey == "" {
		return "", apperr.Validationf("gemini.generate", "GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", apperr.New(apperr.Transport, "gemini.client", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0.2),
		ResponseMIMEType: "application/json",
	}

	resp, err := m.GenerateContent(ctx, Parts(prompt, items)...)
	if err != nil {
		return "", apperr.New(apperr.Transport, "gemini.generate", err)
	}
	txt := firstText(resp)
	if strings.TrimSpace(txt) == "" {
		return "", apperr.New(apperr.Parse, "gemini.generate", errors.New("empty response"))
	}
	return txt, nil
}

// Parts lays out the request: the prompt first, then one blob per item.
func Parts(prompt string, items []media.Item) []genai.Part {
	parts := make([]genai.Part, 0, len(items)+1)
	parts = append(parts, genai.Text(prompt))
	for _, it := range items {
		parts = append(parts, genai.Blob{MIMEType: it.MIME(), Data: it.Bytes()})
	}
	return parts
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
