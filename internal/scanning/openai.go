package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const openAIDefaultModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for an OpenAI-compatible vision backend
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string       // Optional (self-hosted gateways, tests)
	HTTPClient *http.Client // Optional (tests)
	Timeout    time.Duration
}

// OpenAI implements Backend using the chat completions API with image input
type OpenAI struct {
	model  string
	client openai.Client
}

// NewOpenAI creates a new OpenAI backend instance
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Retrying belongs to whoever re-submits the statement
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}, nil
}

// OpenAIStrategy builds an OpenAI backend and checks that the model exists
func OpenAIStrategy(cfg OpenAIConfig) Strategy {
	return Strategy{
		Name: "openai",
		Init: func(ctx context.Context) (Backend, error) {
			o, err := NewOpenAI(cfg)
			if err != nil {
				return nil, err
			}
			if _, err := o.client.Models.Get(ctx, o.model); err != nil {
				return nil, fmt.Errorf("probing openai model %s: %w", o.model, err)
			}
			return o, nil
		},
	}
}

// Name returns the backend identifier
func (o *OpenAI) Name() string { return "openai" }

// Recognize transcribes an image
func (o *OpenAI) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(imageData))

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(transcriptionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "high",
				}),
			}),
		},
		Temperature: openai.Float(0),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op; the SDK client holds no resources beyond its HTTP client
func (o *OpenAI) Close() error {
	return nil
}
