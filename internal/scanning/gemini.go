package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Backend using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini backend instance
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// GeminiStrategy builds a Gemini backend and checks that the model is reachable
func GeminiStrategy(apiKey, modelName string) Strategy {
	return Strategy{
		Name: "gemini",
		Init: func(ctx context.Context) (Backend, error) {
			g, err := NewGemini(ctx, apiKey, modelName)
			if err != nil {
				return nil, err
			}
			probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			if _, err := g.model.Info(probeCtx); err != nil {
				g.Close()
				return nil, fmt.Errorf("probing gemini model: %w", err)
			}
			return g, nil
		},
	}
}

// Name returns the backend identifier
func (g *Gemini) Name() string { return "gemini" }

// Recognize transcribes a PNG image
func (g *Gemini) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	format := strings.TrimPrefix(contentType, "image/")
	parts := []genai.Part{
		genai.ImageData(format, imageData),
		genai.Text(transcriptionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
