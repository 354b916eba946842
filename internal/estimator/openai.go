package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config holds configuration for the OpenAI-compatible client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		Timeout:     30 * time.Second,
		Temperature: 0.3,
	}
}

// OpenAIClient estimates nutrition through a chat completion endpoint.
type OpenAIClient struct {
	client openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewOpenAIClient creates a client. No network I/O happens until Estimate.
func NewOpenAIClient(cfg Config, logger *slog.Logger) (*OpenAIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	logger.Info("Estimator configured", "model", cfg.Model, "timeout", cfg.Timeout)

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Estimate sends the prompt and returns the first choice's text. The call is
// bounded by the configured timeout.
func (c *OpenAIClient) Estimate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(c.cfg.Model),
		Temperature: openai.Float(c.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("Estimate received",
		"model", c.cfg.Model,
		"duration", time.Since(start),
		"chars", len(text),
	)
	return text, nil
}
