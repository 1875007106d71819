package perception

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"utforge/internal/logging"
)

// GeminiClient implements LLMClient on the Google GenAI SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// GeminiConfig holds client construction parameters.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewGeminiClient creates a client. Model and timeout fall back to
// gemini-2.5-pro and 3 minutes.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Complete sends a plain user prompt.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, nil, prompt)
}

// CompleteWithSystem sends a prompt under a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var sys *genai.Content
	if systemPrompt != "" {
		sys = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return c.generate(ctx, sys, userPrompt)
}

func (c *GeminiClient) generate(ctx context.Context, system *genai.Content, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	var cfg *genai.GenerateContentConfig
	if system != nil {
		cfg = &genai.GenerateContentConfig{SystemInstruction: system}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		logging.Pipeline("gemini request failed after %s: %v", time.Since(started), err)
		return "", classifyErr(ctx, "gemini", err)
	}

	text := result.Text()
	logging.PipelineDebug("gemini responded in %s (%d chars)", time.Since(started), len(text))
	if text == "" {
		return "", &ProviderError{Provider: "gemini", Err: fmt.Errorf("empty response for model %s", c.model)}
	}
	return text, nil
}
