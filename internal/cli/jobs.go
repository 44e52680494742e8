package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect generation jobs",
	Long: `List all jobs tracked by the server or inspect a specific job by ID.

Examples:
  ringgen jobs           # List all jobs
  ringgen jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(ctx, args[0])
	}

	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-38s %-12s %-10s %-10s %s\n", "ID", "STATUS", "PROGRESS", "LLM", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, job := range jobs {
		llmName := ""
		if name, ok := job.RequestSummary["llm_name"].(string); ok {
			llmName = name
		}
		created := job.CreatedAt.Local().Format("15:04:05")
		fmt.Printf("%-38s %-12s %-10s %-10s %s\n",
			job.ID, job.Status, fmt.Sprintf("%d%%", job.Progress), llmName, created)
		if verbose {
			if prompt, ok := job.RequestSummary["prompt"].(string); ok && prompt != "" {
				fmt.Printf("    %s\n", prompt)
			}
		}
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %d%% (%s)\n", job.Progress, job.Detail)
	if prompt, ok := job.RequestSummary["prompt"].(string); ok && prompt != "" {
		fmt.Printf("  Prompt: %s\n", prompt)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.FinishedAt != nil {
		fmt.Printf("  Finished: %s\n", job.FinishedAt.Format(time.RFC3339))
		if job.StartedAt != nil {
			fmt.Printf("  Duration: %s\n", job.FinishedAt.Sub(*job.StartedAt).Round(time.Second))
		}
	}

	if job.Error != nil {
		fmt.Printf("  Error: %s", job.Error.Message)
		if job.Error.Reason != "" {
			fmt.Printf(" (%s)", job.Error.Reason)
		}
		fmt.Println()
	}

	if r := job.Result; r != nil {
		fmt.Println("\nResult:")
		fmt.Printf("  Session:  %s\n", r.SessionID)
		if r.GLBSize > 0 {
			fmt.Printf("  Model:    %s (%d bytes)\n", apiClient.ModelURL(r.SessionID), r.GLBSize)
		}
		fmt.Printf("  Cost:     $%.4f over %d calls\n", r.CostSummary.TotalUSD, r.CostSummary.Calls)
		fmt.Printf("  Attempts: %d\n", len(r.RetryLog))
		if len(r.Modules) > 0 {
			fmt.Printf("  Modules:  %v\n", r.Modules)
		}
		if verbose {
			for _, entry := range r.RetryLog {
				mark := "failed"
				if entry.Success {
					mark = "ok"
				}
				fmt.Printf("    attempt %d: %s (%d chars of code)\n", entry.Attempt, mark, entry.CodeLength)
			}
			if r.SpatialReport != "" {
				fmt.Printf("\nSpatial report:\n%s\n", r.SpatialReport)
			}
		}
	}

	return nil
}
