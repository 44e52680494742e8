package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show the server's job queue state and per-operation timings and token
usage since it started.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Println("Jobs:")
	fmt.Printf("  Queue depth: %d\n", stats.Jobs.QueueDepth)
	fmt.Printf("  Active:      %d\n", stats.Jobs.ActiveJobs)
	fmt.Printf("  Tracked:     %d\n", stats.Jobs.Records)
	fmt.Printf("  Workers:     %d\n", stats.Jobs.Workers)

	if len(stats.Operations) > 0 {
		var pretty map[string]any
		if err := json.Unmarshal(stats.Operations, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println("\nOperations:")
			fmt.Println(string(out))
		}
	}
	return nil
}
