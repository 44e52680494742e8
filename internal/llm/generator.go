// Package llm wraps langchaingo models behind a closed set of code
// generators with per-call usage and cost accounting.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Usage records token consumption and cost for one model call.
type Usage struct {
	Model             string  `json:"model"`
	InputTokens       int     `json:"input_tokens"`
	OutputTokens      int     `json:"output_tokens"`
	InputCostPerMTok  float64 `json:"input_cost_per_mtok"`
	OutputCostPerMTok float64 `json:"output_cost_per_mtok"`
	CostUSD           float64 `json:"cost_usd"`
}

// Request is one generation call: the master system prompt, the user
// prompt, and an optional reference image.
type Request struct {
	System    string
	Prompt    string
	ImageData []byte
	ImageMIME string
}

// Response is the raw model output plus accounting.
type Response struct {
	Raw     string
	Usage   Usage
	Elapsed time.Duration
}

// Generator produces Blender geometry code from a prompt. Implementations
// form a closed set, one per supported provider.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

const (
	// overloadRetries is how often an overloaded (529) provider call is
	// retried before giving up.
	overloadRetries = 3
	// overloadBackoff is multiplied by the attempt number between retries.
	overloadBackoff = 15 * time.Second
)

// generator is the shared langchaingo-backed implementation behind every
// provider variant.
type generator struct {
	name      string
	model     llms.Model
	modelName string
	pricing   ModelPricing
	maxTokens int
	logger    *slog.Logger
}

func (g *generator) Name() string { return g.name }

func (g *generator) Generate(ctx context.Context, req Request) (*Response, error) {
	parts := []llms.ContentPart{}
	if len(req.ImageData) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, llms.BinaryPart(mime, req.ImageData))
	}
	parts = append(parts, llms.TextPart(req.Prompt))

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}

	t0 := time.Now()
	var lastErr error
	for attempt := 1; attempt <= overloadRetries; attempt++ {
		g.logger.Info("calling model", "provider", g.name, "model", g.modelName,
			"image", len(req.ImageData) > 0, "attempt", attempt)

		resp, err := g.model.GenerateContent(ctx, messages, llms.WithMaxTokens(g.maxTokens))
		if err != nil {
			if fatal := wrapFatalError(err); fatal != err {
				return nil, fatal
			}
			if isOverloaded(err) && attempt < overloadRetries {
				wait := time.Duration(attempt) * overloadBackoff
				g.logger.Warn("model overloaded, backing off",
					"provider", g.name, "attempt", attempt, "wait", wait)
				select {
				case <-time.After(wait):
					lastErr = err
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return nil, fmt.Errorf("generate content: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("model %s returned no choices", g.modelName)
		}

		choice := resp.Choices[0]
		in, out := tokensFromInfo(choice.GenerationInfo)
		usage := Usage{
			Model:             g.modelName,
			InputTokens:       in,
			OutputTokens:      out,
			InputCostPerMTok:  g.pricing.InputPerMTok,
			OutputCostPerMTok: g.pricing.OutputPerMTok,
			CostUSD:           g.pricing.Cost(in, out),
		}
		elapsed := time.Since(t0)
		g.logger.Info("model responded", "provider", g.name, "elapsed", elapsed.Round(100*time.Millisecond),
			"chars", len(choice.Content), "input_tokens", in, "output_tokens", out, "cost_usd", usage.CostUSD)

		return &Response{Raw: choice.Content, Usage: usage, Elapsed: elapsed}, nil
	}
	return nil, fmt.Errorf("generate content: %w", lastErr)
}

// isOverloaded detects provider capacity errors worth a linear backoff.
func isOverloaded(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") || strings.Contains(msg, "529")
}

// tokensFromInfo pulls token counts out of langchaingo's per-provider
// GenerationInfo map. Providers disagree on key names, so several
// spellings are probed.
func tokensFromInfo(info map[string]any) (input, output int) {
	input = intFromInfo(info, "InputTokens", "PromptTokens", "input_tokens", "prompt_tokens")
	output = intFromInfo(info, "OutputTokens", "CompletionTokens", "output_tokens", "completion_tokens", "candidates_tokens")
	return input, output
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		v, ok := info[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}
