package gateway

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ClientConfig configures the language-model client.
type ClientConfig struct {
	Provider   string // "anthropic" | "openai" | "ollama"
	Model      string
	APIKey     string
	OllamaHost string
}

// LangChainClient wraps a langchaingo model behind the ModelClient interface.
type LangChainClient struct {
	llm       llms.Model
	modelName string
}

// NewClient creates a model client based on configuration.
func NewClient(cfg ClientConfig) (*LangChainClient, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}

	return &LangChainClient{llm: model, modelName: cfg.Model}, nil
}

// Generate runs a single-prompt completion.
func (c *LangChainClient) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return response, nil
}

// Model returns the configured model name.
func (c *LangChainClient) Model() string {
	return c.modelName
}
