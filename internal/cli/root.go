// Package cli provides the command-line interface for loom.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/loomchat/loom/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Branching AI conversation trees",
	Long: `Loom keeps conversations as trees instead of linear chat logs.

Fork a reply from any earlier message, explore parallel branches, and let
the model see relevant context from sibling branches when it answers.
All commands except 'serve' talk to a running loom server.`,
	Version: Version,
}

// api returns a client for the configured server.
func api() *client.Client {
	return client.New(serverURL)
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $LOOM_SERVER_URL or http://localhost:8484)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watchCmd)
}
