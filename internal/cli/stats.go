package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomchat/loom/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show node counts, recent operations, and provider timing metrics
from the running server.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := api().Stats(context.Background())
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}

	fmt.Printf("Nodes: %d\n", stats.Nodes)

	if len(stats.Operations) > 0 {
		fmt.Printf("\nOperations (%d):\n", len(stats.Operations))
		for _, op := range stats.Operations {
			line := fmt.Sprintf("  %s  %-9s  target=%s", op.ID, op.Status, op.TargetNodeID)
			if op.Reason != "" {
				line += "  (" + op.Reason + ")"
			}
			fmt.Println(line)
		}
	}

	fmt.Println("\nTimings:")
	printTiming("embedding", stats.Metrics.Embedding)
	printTiming("completion", stats.Metrics.Completion)
	printTiming("summary", stats.Metrics.Summary)
	printTiming("tree_mutate", stats.Metrics.TreeMutate)
	printTiming("context", stats.Metrics.Context)

	if c := stats.Metrics.Completion; c != nil && c.InputTokens != nil && c.OutputTokens != nil {
		fmt.Printf("\nCompletion tokens: in=%d out=%d\n", *c.InputTokens, *c.OutputTokens)
	}

	fmt.Printf("\nUptime: %.0fs\n", stats.Metrics.UptimeSeconds)
	return nil
}

func printTiming(name string, m *metrics.OperationSnapshot) {
	if m == nil {
		return
	}
	fmt.Printf("  %-12s count=%d avg=%.1fms min=%dms max=%dms\n",
		name, m.Count, m.AvgTimeMs, m.MinTimeMs, m.MaxTimeMs)
}
