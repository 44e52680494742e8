package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued job",
	Long: `Cancel a job that is still waiting in the queue.

Jobs that have already started running cannot be cancelled; finished
jobs are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	job, err := apiClient.Cancel(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	fmt.Printf("Job %s: %s\n", job.ID, job.Status)
	return nil
}
