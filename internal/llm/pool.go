package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/config"
)

// Provider names accepted in generation requests. The set is closed;
// anything else is rejected at dispatch.
const (
	ProviderClaude       = "claude"
	ProviderClaudeSonnet = "claude-sonnet"
	ProviderClaudeOpus   = "claude-opus"
	ProviderGemini       = "gemini"
	ProviderOllama       = "ollama"
	ProviderBedrock      = "bedrock"
)

// KnownProvider reports whether name is one of the supported providers.
func KnownProvider(name string) bool {
	switch name {
	case ProviderClaude, ProviderClaudeSonnet, ProviderClaudeOpus,
		ProviderGemini, ProviderOllama, ProviderBedrock:
		return true
	}
	return false
}

// Pool owns the provider clients, lazily built and cached under a mutex,
// keyed by provider and credential so rotated keys get fresh clients.
type Pool struct {
	cfg     config.Config
	pricing PricingTable
	logger  *slog.Logger

	mu         sync.Mutex
	generators map[string]Generator
}

// NewPool creates an empty client pool.
func NewPool(cfg config.Config, pricing PricingTable, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Pool{
		cfg:        cfg,
		pricing:    pricing,
		logger:     logger,
		generators: make(map[string]Generator),
	}
}

// Generator returns the cached generator for the named provider, building
// it on first use.
func (p *Pool) Generator(ctx context.Context, name string) (Generator, error) {
	if !KnownProvider(name) {
		return nil, fmt.Errorf("unsupported llm provider: %s", name)
	}

	key := name + ":" + p.credentialFor(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.generators[key]; ok {
		return g, nil
	}

	g, err := p.build(ctx, name)
	if err != nil {
		return nil, err
	}
	p.generators[key] = g
	return g, nil
}

func (p *Pool) credentialFor(name string) string {
	switch name {
	case ProviderGemini:
		return p.cfg.GeminiAPIKey
	case ProviderOllama:
		return p.cfg.OllamaHost
	case ProviderBedrock:
		return p.cfg.BedrockModel
	default:
		return p.cfg.AnthropicAPIKey
	}
}

func (p *Pool) build(ctx context.Context, name string) (Generator, error) {
	g := &generator{
		name:      name,
		maxTokens: p.cfg.MaxLLMTokens,
		logger:    p.logger,
	}

	switch name {
	case ProviderClaude, ProviderClaudeOpus, ProviderClaudeSonnet:
		if p.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key required for provider %s", name)
		}
		modelName := p.cfg.ClaudeModel
		if name == ProviderClaudeSonnet {
			modelName = p.cfg.ClaudeSonnet
		}
		model, err := anthropic.New(
			anthropic.WithToken(p.cfg.AnthropicAPIKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		g.model, g.modelName = model, modelName

	case ProviderGemini:
		if p.cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key required")
		}
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(p.cfg.GeminiAPIKey),
			googleai.WithDefaultModel(p.cfg.GeminiModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create gemini model: %w", err)
		}
		g.model, g.modelName = model, p.cfg.GeminiModel

	case ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(p.cfg.OllamaModel),
			ollama.WithServerURL(p.cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		g.model, g.modelName = model, p.cfg.OllamaModel

	case ProviderBedrock:
		if p.cfg.BedrockModel == "" {
			return nil, fmt.Errorf("bedrock model id required")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		model, err := bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(p.cfg.BedrockModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}
		g.model, g.modelName = model, p.cfg.BedrockModel
	}

	g.pricing = p.pricing.For(g.modelName)
	return g, nil
}
