package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/artifact"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/blender"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/config"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/jobs"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/llm"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/metrics"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/prompts"
)

// GeneratorPool resolves provider names to generators. Satisfied by
// llm.Pool.
type GeneratorPool interface {
	Generator(ctx context.Context, name string) (llm.Generator, error)
}

// Pipeline is the job executor behind every generation request. One
// instance serves all workers; it holds no per-job state.
type Pipeline struct {
	cfg       config.Config
	pool      GeneratorPool
	runner    ScriptRunner
	store     *artifact.Store
	collector *metrics.Collector
	system    string
	logger    *slog.Logger
}

// New builds a pipeline over the shared provider pool, Blender runner
// and artifact store. systemPrompt is the master prompt sent with every
// model call.
func New(
	cfg config.Config,
	pool GeneratorPool,
	runner ScriptRunner,
	store *artifact.Store,
	collector *metrics.Collector,
	systemPrompt string,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		pool:      pool,
		runner:    runner,
		store:     store,
		collector: collector,
		system:    systemPrompt,
		logger:    logger,
	}
}

// Execute implements jobs.Executor: prompt → model → Blender repair
// loop → session persistence → GLB upload. Failures come back as a
// failed Result carrying a reason; a returned error means the request
// itself was unusable.
func (p *Pipeline) Execute(ctx context.Context, request any, progress jobs.ProgressFunc) (jobs.Result, error) {
	req, ok := request.(*Request)
	if !ok {
		return nil, fmt.Errorf("unexpected request type %T", request)
	}

	sessionID := req.RequestID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	sessionDir := filepath.Join(p.cfg.SessionsDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	glbPath := filepath.Join(sessionDir, "model.glb")
	logger := p.logger.With("session_id", sessionID, "llm", req.LLMName)

	imageData, imageMIME, err := p.decodeImage(req, sessionDir)
	if err != nil {
		return nil, err
	}

	maxRetries := p.cfg.MaxErrorRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	maxCost := p.cfg.MaxCostPerRequestUSD
	if req.MaxCostUSD != nil {
		maxCost = *req.MaxCostUSD
	}

	gen, err := p.pool.Generator(ctx, req.LLMName)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	logger.Info("generating code", "has_image", len(imageData) > 0)
	if progress != nil {
		progress(jobs.StageLLMStarted, 0, maxRetries)
	}

	genPrompt := prompts.DefaultGeneration
	if req.Prompt != "" {
		genPrompt = prompts.Generation(req.Prompt)
	}

	resp, err := gen.Generate(ctx, llm.Request{
		System:    p.system,
		Prompt:    genPrompt,
		ImageData: imageData,
		ImageMIME: imageMIME,
	})
	if err != nil {
		logger.Error("generation call failed", "error", err)
		return &Result{
			SessionID:     sessionID,
			LLMUsed:       req.LLMName,
			failureReason: ReasonLLMCallFailed,
		}, nil
	}
	if p.collector != nil {
		p.collector.RecordLLMUsage(metrics.OpLLMGenerate, resp.Elapsed,
			int64(resp.Usage.InputTokens), int64(resp.Usage.OutputTokens), resp.Usage.CostUSD)
	}
	if progress != nil {
		progress(jobs.StageLLMDone, 0, maxRetries)
	}

	initialCode := blender.ExtractCode(resp.Raw)
	usages := []llm.Usage{resp.Usage}
	logger.Info("code generated", "chars", len(initialCode),
		"lines", strings.Count(initialCode, "\n"), "modules", blender.ExtractModules(initialCode))

	fixer := &llmFixer{gen: gen, system: p.system, collector: p.collector}
	outcome := runWithRetry(ctx, initialCode, glbPath, p.runner, fixer, retryConfig{
		maxAttempts:   maxRetries,
		budgetCeiling: maxCost,
		spentSoFar:    resp.Usage.CostUSD,
	}, progress, logger)
	if p.collector != nil && outcome.run != nil {
		p.collector.RecordTiming(metrics.OpBlenderRun,
			time.Duration(outcome.run.Elapsed*float64(time.Second)))
	}

	usages = append(usages, outcome.repairUsage...)
	costSummary := computeCostSummary(usages)
	modules := blender.ExtractModules(outcome.code)

	result := &Result{
		Success:         outcome.run.Success,
		SessionID:       sessionID,
		Code:            outcome.code,
		Modules:         modules,
		SpatialReport:   outcome.run.SpatialReport,
		RetryLog:        outcome.retryLog,
		CostSummary:     costSummary,
		NeedsValidation: !skipValidation(req.LLMName),
		LLMUsed:         req.LLMName,
		BlenderElapsed:  outcome.run.Elapsed,
		GLBSize:         outcome.run.GLBSize,
	}
	if !result.Success {
		switch {
		case outcome.oracleErr != nil:
			result.failureReason = ReasonOracleCallFailed
		case outcome.budgetExhausted:
			result.failureReason = ReasonBudgetExhausted
		default:
			result.failureReason = ReasonAttemptsExhausted
		}
	}

	p.saveSession(sessionDir, sessionID, req, result, outcome.run, logger)

	if !result.Success {
		logger.Error("generation failed", "reason", result.failureReason,
			"attempts", len(outcome.retryLog), "cost_usd", costSummary.TotalUSD)
		return result, nil
	}

	ref, err := p.store.PutFile(glbPath, "model/gltf-binary")
	if err != nil {
		logger.Warn("artifact store upload failed, serving local path", "error", err)
		ref = artifact.Ref{URI: glbPath}
	}
	result.GLB = ref

	logger.Info("generation complete", "glb_size", result.GLBSize,
		"cost_usd", costSummary.TotalUSD, "attempts", len(outcome.retryLog))
	return result, nil
}

func (p *Pipeline) decodeImage(req *Request, sessionDir string) ([]byte, string, error) {
	if req.ImageB64 == "" {
		return nil, "", nil
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		return nil, "", fmt.Errorf("decode reference image: %w", err)
	}
	mime := req.ImageMIME
	if mime == "" {
		mime = "image/jpeg"
	}
	ext := mime[strings.LastIndex(mime, "/")+1:]
	imgPath := filepath.Join(sessionDir, "reference."+ext)
	if err := os.WriteFile(imgPath, data, 0644); err != nil {
		return nil, "", fmt.Errorf("write reference image: %w", err)
	}
	return data, mime, nil
}

// saveSession persists the session state next to the GLB so the editor
// service can pick it up. Failures are logged, not fatal.
func (p *Pipeline) saveSession(sessionDir, sessionID string, req *Request, result *Result, run *blender.Result, logger *slog.Logger) {
	now := isoNow()
	session := map[string]any{
		"session_id":      sessionID,
		"prompt":          req.Prompt,
		"llm_name":        req.LLMName,
		"code":            result.Code,
		"modules":         result.Modules,
		"version":         1,
		"current_version": 1,
		"edits":           []any{},
		"version_history": []map[string]any{{
			"version":     1,
			"code":        result.Code,
			"modules":     result.Modules,
			"timestamp":   now,
			"description": "Initial generation",
			"cost":        result.CostSummary.TotalUSD,
		}},
		"created":         now,
		"retry_log":       result.RetryLog,
		"cost":            result.CostSummary.TotalUSD,
		"spatial_report":  result.SpatialReport,
		"skip_validation": !result.NeedsValidation,
		"blender_result":  run,
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(sessionDir, "session.json"), data, 0644)
	}
	if err != nil {
		logger.Warn("failed to persist session state", "error", err)
	}
}

func newSessionID() string {
	u := uuid.New()
	hex := strings.ReplaceAll(u.String(), "-", "")
	return fmt.Sprintf("s_%s_%d", hex[:10], time.Now().Unix())
}
