// Package pipeline orchestrates one ring generation end to end: prompt
// construction, LLM code generation, headless Blender execution with a
// budget-capped repair loop, and session persistence.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/artifact"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/llm"
)

// Request is one generation job as submitted over HTTP.
type Request struct {
	RequestID  string   `json:"request_id,omitempty"`
	Prompt     string   `json:"prompt"`
	LLMName    string   `json:"llm_name"`
	ImageB64   string   `json:"image_b64,omitempty"`
	ImageMIME  string   `json:"image_mime,omitempty"`
	MaxRetries *int     `json:"max_retries,omitempty"`
	MaxCostUSD *float64 `json:"max_cost_usd,omitempty"`
}

// Validate rejects requests that could never run.
func (r *Request) Validate() error {
	if r.LLMName == "" {
		return fmt.Errorf("llm_name is required")
	}
	if !llm.KnownProvider(r.LLMName) {
		return fmt.Errorf("unknown llm_name %q", r.LLMName)
	}
	if r.MaxRetries != nil && *r.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if r.MaxCostUSD != nil && *r.MaxCostUSD <= 0 {
		return fmt.Errorf("max_cost_usd must be positive")
	}
	return nil
}

// Summary is the compact request view shown on job records. The prompt
// is truncated so record listings stay small.
func (r *Request) Summary() map[string]any {
	prompt := r.Prompt
	if len(prompt) > 100 {
		prompt = prompt[:100]
	}
	return map[string]any{
		"prompt":    prompt,
		"llm_name":  r.LLMName,
		"has_image": r.ImageB64 != "",
	}
}

// RetryEntry records one Blender attempt in the repair loop.
type RetryEntry struct {
	Attempt    int    `json:"attempt"`
	Success    bool   `json:"success"`
	CodeLength int    `json:"code_length"`
	ErrorText  string `json:"error_text"`
	Timestamp  string `json:"timestamp"`
}

// CostSummary aggregates usage across the generation call and every
// repair call of one job.
type CostSummary struct {
	TotalInputTokens  int         `json:"total_input_tokens"`
	TotalOutputTokens int         `json:"total_output_tokens"`
	TotalUSD          float64     `json:"total_usd"`
	Calls             int         `json:"calls"`
	Details           []llm.Usage `json:"details,omitempty"`
}

func computeCostSummary(usages []llm.Usage) CostSummary {
	var summary CostSummary
	for _, u := range usages {
		summary.TotalInputTokens += u.InputTokens
		summary.TotalOutputTokens += u.OutputTokens
		summary.TotalUSD += u.CostUSD
	}
	summary.TotalUSD = llm.Round4(summary.TotalUSD)
	summary.Calls = len(usages)
	summary.Details = usages
	return summary
}

// Failure reasons carried onto the job record when a run ends without a
// usable GLB.
const (
	ReasonLLMCallFailed     = "llm_call_failed"
	ReasonOracleCallFailed  = "oracle_call_failed"
	ReasonBudgetExhausted   = "budget_exhausted"
	ReasonAttemptsExhausted = "attempts_exhausted"
)

// Result is the final outcome of one generation job.
type Result struct {
	Success         bool         `json:"success"`
	SessionID       string       `json:"session_id"`
	GLB             artifact.Ref `json:"glb_path,omitzero"`
	Code            string       `json:"code,omitempty"`
	Modules         []string     `json:"modules,omitempty"`
	SpatialReport   string       `json:"spatial_report,omitempty"`
	RetryLog        []RetryEntry `json:"retry_log,omitempty"`
	CostSummary     CostSummary  `json:"cost_summary"`
	NeedsValidation bool         `json:"needs_validation"`
	LLMUsed         string       `json:"llm_used"`
	BlenderElapsed  float64      `json:"blender_elapsed,omitempty"`
	GLBSize         int64        `json:"glb_size,omitempty"`

	failureReason string
}

// Ok reports whether the job produced a usable GLB.
func (r *Result) Ok() bool { return r.Success }

// FailureReason names why a failed run stopped.
func (r *Result) FailureReason() string { return r.failureReason }

// skipValidation mirrors the deployment rule that opus output ships
// without a second validation pass.
func skipValidation(llmName string) bool {
	return strings.Contains(strings.ToLower(llmName), "opus")
}

func isoNow() string {
	return time.Now().Format(time.RFC3339Nano)
}
