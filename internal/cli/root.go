// Package cli provides the command-line interface for ringgen.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// apiClient talks to the generation server; created before every
	// command run.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ringgen",
	Short: "LLM-driven 3D ring generation",
	Long: `Ringgen generates parametric 3D jewelry models from natural language.

Prompts are turned into Blender geometry code by an LLM, executed
headlessly, and repaired automatically when the script fails. Jobs run
on the ringgen server; this CLI submits them and tracks their progress.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default RINGGEN_SERVER_URL or http://localhost:8003)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
