package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export the conversation tree to a snapshot file",
	Long: `Export the full conversation tree as a JSON snapshot.

The snapshot preserves node ids, structure, roles, and timestamps, and
can be imported into a fresh server with 'loom import'.

Examples:
  loom export backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	snap, err := api().Export(context.Background())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(args[0], raw, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	fmt.Printf("Exported %d nodes to %s\n", len(snap.Nodes), args[0])
	return nil
}
