package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := apiClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		fmt.Printf("Status:  %s\n", h.Status)
		fmt.Printf("Workers: %d (queue %d, active %d)\n", h.Workers, h.QueueSize, h.ActiveJobs)
		fmt.Printf("Blender: %v\n", h.BlenderAvailable)
		fmt.Print("Providers:")
		for name, ok := range h.Providers {
			if ok {
				fmt.Printf(" %s", name)
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
