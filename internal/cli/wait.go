package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var waitCmd = &cobra.Command{
	Use:   "wait <job-id>",
	Short: "Wait for a job to finish",
	Long: `Follow a submitted job until it reaches a terminal status and print
its outcome. Exits non-zero when the job failed or was cancelled.`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)
}

func runWait(cmd *cobra.Command, args []string) error {
	job, err := trackJob(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if job == nil {
		return nil
	}
	return printOutcome(job)
}
