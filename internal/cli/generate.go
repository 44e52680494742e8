package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/client"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/pipeline"
)

var (
	generateLLM     string
	generateImage   string
	generateID      string
	generateRetries int
	generateBudget  float64
	generateWait    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate a 3D ring from a prompt",
	Long: `Submit a ring generation job to the server.

Without a prompt a classic solitaire diamond ring is generated. With
--wait the command tracks progress until the job finishes; otherwise it
prints the job id and returns immediately.

Examples:
  ringgen generate "art deco emerald ring, platinum band"
  ringgen generate --llm gemini --image sketch.png "like this sketch"
  ringgen generate --wait "twisted gold band with three diamonds"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateLLM, "llm", "claude", "LLM provider (claude, claude-sonnet, claude-opus, gemini, ollama, bedrock)")
	generateCmd.Flags().StringVar(&generateImage, "image", "", "reference image file")
	generateCmd.Flags().StringVar(&generateID, "id", "", "explicit job id (also used as session id)")
	generateCmd.Flags().IntVar(&generateRetries, "retries", 0, "max Blender attempts (0 = server default)")
	generateCmd.Flags().Float64Var(&generateBudget, "budget", 0, "max cost per request in USD (0 = server default)")
	generateCmd.Flags().BoolVarP(&generateWait, "wait", "w", false, "wait for the job to finish")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req := pipeline.Request{
		LLMName:   generateLLM,
		RequestID: generateID,
	}
	if len(args) == 1 {
		req.Prompt = args[0]
	}
	if generateRetries > 0 {
		req.MaxRetries = &generateRetries
	}
	if generateBudget > 0 {
		req.MaxCostUSD = &generateBudget
	}
	if generateImage != "" {
		data, err := os.ReadFile(generateImage)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		req.ImageB64 = base64.StdEncoding.EncodeToString(data)
		req.ImageMIME = mime.TypeByExtension(filepath.Ext(generateImage))
	}

	ctx := context.Background()
	ack, err := apiClient.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	if !generateWait {
		fmt.Printf("Job %s submitted.\n", ack.JobID)
		fmt.Printf("Track it with 'ringgen jobs %s' or 'ringgen wait %s'.\n", ack.JobID, ack.JobID)
		return nil
	}

	job, err := trackJob(ctx, ack.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		// Detached; the job keeps running server-side.
		return nil
	}
	return printOutcome(job)
}

// trackJob follows a job to completion, with the animated progress UI
// on a terminal and plain polling otherwise.
func trackJob(ctx context.Context, jobID string) (*client.Job, error) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(apiClient, jobID)
	}
	return watchPlain(ctx, jobID)
}

// watchPlain streams progress as one line per update, for logs and
// non-interactive shells.
func watchPlain(ctx context.Context, jobID string) (*client.Job, error) {
	lastDetail := ""
	return apiClient.WatchProgress(ctx, jobID, func(job client.Job) error {
		if job.Detail != lastDetail {
			lastDetail = job.Detail
			fmt.Printf("[%3d%%] %s\n", job.Progress, job.Detail)
		}
		return nil
	})
}

// printOutcome renders a finished job and fails the command when the
// job did not succeed.
func printOutcome(job *client.Job) error {
	switch job.Status {
	case "succeeded":
		res := job.Result
		fmt.Println("Generation complete.")
		if res != nil {
			fmt.Printf("  Session:  %s\n", res.SessionID)
			fmt.Printf("  Model:    %s (%d bytes)\n", apiClient.ModelURL(res.SessionID), res.GLBSize)
			fmt.Printf("  Cost:     $%.4f over %d calls\n", res.CostSummary.TotalUSD, res.CostSummary.Calls)
			fmt.Printf("  Attempts: %d\n", len(res.RetryLog))
			if verbose {
				if len(res.Modules) > 0 {
					fmt.Printf("  Modules:  %v\n", res.Modules)
				}
				if res.SpatialReport != "" {
					fmt.Printf("  Spatial report:\n%s\n", res.SpatialReport)
				}
			}
		}
		return nil
	case "cancelled":
		return fmt.Errorf("job %s was cancelled", job.ID)
	default:
		if job.Error != nil {
			return fmt.Errorf("job %s failed (%s): %s", job.ID, job.Error.Reason, job.Error.Message)
		}
		return fmt.Errorf("job %s failed", job.ID)
	}
}
