package pipeline

import (
	"context"
	"fmt"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/blender"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/llm"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/metrics"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/prompts"
)

// llmFixer repairs failing scripts by sending them back to the model
// that generated them, with the error excerpt and the last spatial
// report as context.
type llmFixer struct {
	gen       llm.Generator
	system    string
	collector *metrics.Collector
}

func (f *llmFixer) Fix(ctx context.Context, code, errorExcerpt, spatialReport string) (string, llm.Usage, error) {
	resp, err := f.gen.Generate(ctx, llm.Request{
		System: f.system,
		Prompt: prompts.Fix(code, errorExcerpt, spatialReport),
	})
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("fix call: %w", err)
	}
	if f.collector != nil {
		f.collector.RecordLLMUsage(metrics.OpLLMFix, resp.Elapsed,
			int64(resp.Usage.InputTokens), int64(resp.Usage.OutputTokens), resp.Usage.CostUSD)
	}
	fixed := blender.ExtractCode(resp.Raw)
	if fixed == "" {
		return "", resp.Usage, fmt.Errorf("fix call returned no code")
	}
	return fixed, resp.Usage, nil
}
