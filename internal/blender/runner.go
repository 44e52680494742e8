package blender

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// minGLBSize is the smallest GLB considered real geometry; an empty scene
// still exports a ~172 byte container.
const minGLBSize = 1024

// Result is the structured outcome of one headless Blender run. Run
// always returns a Result, also on spawn errors and timeouts.
type Result struct {
	Success       bool     `json:"success"`
	ReturnCode    int      `json:"returncode"`
	Stdout        string   `json:"-"`
	Stderr        string   `json:"-"`
	PipelineLog   []string `json:"pipeline_log"`
	ErrorLines    []string `json:"error_lines"`
	GLBExists     bool     `json:"glb_exists"`
	GLBSize       int64    `json:"glb_size"`
	Elapsed       float64  `json:"elapsed"`
	ScriptPath    string   `json:"script_path"`
	SpatialReport string   `json:"spatial_report"`
}

// Runner executes assembled ring scripts with a fixed executable and
// timeout.
type Runner struct {
	Executable string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// NewRunner creates a runner for the given Blender binary.
func NewRunner(executable string, timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Executable: executable, Timeout: timeout, Logger: logger}
}

// Available reports whether the configured executable exists.
func (r *Runner) Available() bool {
	_, err := os.Stat(r.Executable)
	return err == nil
}

// Run writes the assembled script next to the GLB output path and executes
// it headlessly. Success means the GLB exists and holds real geometry.
func (r *Runner) Run(ctx context.Context, code, glbOutputPath string) *Result {
	sessionDir := filepath.Dir(glbOutputPath)
	scriptPath := filepath.Join(sessionDir, "ring_script.py")

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return &Result{Success: false, ReturnCode: -1, ErrorLines: []string{err.Error()}}
	}
	if err := os.WriteFile(scriptPath, []byte(AssembleScript(code, glbOutputPath)), 0644); err != nil {
		return &Result{Success: false, ReturnCode: -1, ErrorLines: []string{err.Error()}}
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	r.Logger.Info("running blender", "script", scriptPath)
	t0 := time.Now()

	cmd := exec.CommandContext(runCtx, r.Executable, "-b", "--python", scriptPath)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(t0).Seconds()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.Logger.Error("blender timed out", "timeout", r.Timeout)
		return &Result{
			Success:    false,
			ReturnCode: -1,
			ErrorLines: []string{"TimeoutExpired"},
			Elapsed:    elapsed,
			ScriptPath: scriptPath,
		}
	}

	returnCode := 0
	if err != nil {
		returnCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			returnCode = exitErr.ExitCode()
		} else {
			// Spawn failure: no output to parse, report the error itself.
			r.Logger.Error("blender failed to start", "error", err)
			return &Result{
				Success:    false,
				ReturnCode: returnCode,
				ErrorLines: []string{err.Error()},
				Elapsed:    elapsed,
				ScriptPath: scriptPath,
			}
		}
	}

	out := stdout.String()
	errOut := stderr.String()

	var glbSize int64
	glbExists := false
	if info, statErr := os.Stat(glbOutputPath); statErr == nil {
		glbExists = true
		glbSize = info.Size()
	}

	result := &Result{
		Success:       glbExists && glbSize > minGLBSize,
		ReturnCode:    returnCode,
		Stdout:        out,
		Stderr:        errOut,
		PipelineLog:   filterLines(out, isPipelineLine),
		ErrorLines:    filterLines(out+"\n"+errOut, isErrorLine),
		GLBExists:     glbExists,
		GLBSize:       glbSize,
		Elapsed:       elapsed,
		ScriptPath:    scriptPath,
		SpatialReport: ExtractSpatialReport(out),
	}
	r.Logger.Info("blender finished", "success", result.Success,
		"returncode", returnCode, "glb_size", glbSize, "elapsed", elapsed)
	return result
}

func filterLines(text string, keep func(string) bool) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if keep(line) {
			out = append(out, line)
		}
	}
	return out
}

func isPipelineLine(line string) bool {
	return strings.Contains(line, "[PIPELINE]")
}

func isErrorLine(line string) bool {
	return strings.Contains(line, "Traceback") ||
		strings.Contains(strings.ToLower(line), "error")
}
