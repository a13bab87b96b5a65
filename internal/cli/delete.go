package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <node-id>",
	Short: "Delete a node and its entire subtree",
	Long: `Delete a node and everything below it.

Any in-flight reply generation targeting a deleted node is cancelled.

Examples:
  loom delete node_4`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := api().DeleteNode(context.Background(), args[0]); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}

	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
