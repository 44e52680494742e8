package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/blender"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/jobs"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/llm"
)

// ScriptRunner executes one assembled script. Satisfied by
// blender.Runner; tests swap in fakes.
type ScriptRunner interface {
	Run(ctx context.Context, code, glbOutputPath string) *blender.Result
}

// Fixer turns failing code plus its error excerpt into repaired code.
type Fixer interface {
	Fix(ctx context.Context, code, errorExcerpt, spatialReport string) (string, llm.Usage, error)
}

// retryConfig bounds the repair loop.
type retryConfig struct {
	maxAttempts   int
	budgetCeiling float64 // USD, inclusive: cumulative >= ceiling stops repairs
	spentSoFar    float64 // cost already accrued before attempt 1
}

// retryOutcome is everything the repair loop produced, on every path.
type retryOutcome struct {
	code            string
	run             *blender.Result
	retryLog        []RetryEntry
	repairUsage     []llm.Usage
	oracleErr       error
	budgetExhausted bool
}

// errorExcerpt condenses a failed run into the text handed to the fixer
// and stored on the retry entry: the first 20 error lines plus the last
// 1500 characters of stderr.
func errorExcerpt(run *blender.Result) string {
	lines := run.ErrorLines
	if len(lines) > 20 {
		lines = lines[:20]
	}
	excerpt := strings.Join(lines, "\n")
	stderr := run.Stderr
	if len(stderr) > 1500 {
		stderr = stderr[len(stderr)-1500:]
	}
	if stderr != "" {
		excerpt += "\n" + stderr
	}
	return excerpt
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// runWithRetry runs code through Blender up to cfg.maxAttempts times,
// asking the fixer to repair it between failing attempts while the cost
// budget holds. The outcome always carries the final code, the last run
// and the full retry log, whatever stopped the loop.
func runWithRetry(
	ctx context.Context,
	initialCode, glbPath string,
	runner ScriptRunner,
	fixer Fixer,
	cfg retryConfig,
	progress jobs.ProgressFunc,
	logger *slog.Logger,
) retryOutcome {
	out := retryOutcome{code: initialCode}
	cumulative := cfg.spentSoFar
	lastSpatialReport := ""

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		logger.Info("blender attempt", "attempt", attempt, "max", cfg.maxAttempts,
			"spent_usd", cumulative, "budget_usd", cfg.budgetCeiling)
		if progress != nil {
			progress(jobs.StageBlender, attempt, cfg.maxAttempts)
		}

		out.run = runner.Run(ctx, out.code, glbPath)
		if out.run.SpatialReport != "" {
			lastSpatialReport = out.run.SpatialReport
		}

		entry := RetryEntry{
			Attempt:    attempt,
			Success:    out.run.Success,
			CodeLength: len(out.code),
			Timestamp:  isoNow(),
		}

		if out.run.Success {
			out.retryLog = append(out.retryLog, entry)
			logger.Info("blender attempt succeeded", "attempt", attempt)
			return out
		}

		excerpt := errorExcerpt(out.run)
		entry.ErrorText = clip(excerpt, 3000)
		out.retryLog = append(out.retryLog, entry)

		if attempt == cfg.maxAttempts {
			logger.Info("blender attempt failed, no more retries", "attempt", attempt)
			break
		}

		if cumulative >= cfg.budgetCeiling {
			logger.Warn("cost budget reached, skipping repair",
				"spent_usd", cumulative, "budget_usd", cfg.budgetCeiling)
			out.budgetExhausted = true
			break
		}

		logger.Info("blender attempt failed, asking fixer", "attempt", attempt)
		if progress != nil {
			progress(jobs.StageFixing, attempt, cfg.maxAttempts)
		}

		fixed, usage, err := fixer.Fix(ctx, out.code, clip(excerpt, 2000), lastSpatialReport)
		if err != nil {
			logger.Error("fixer call failed", "error", err)
			out.oracleErr = err
			break
		}
		out.code = fixed
		out.repairUsage = append(out.repairUsage, usage)
		cumulative += usage.CostUSD
	}

	return out
}
