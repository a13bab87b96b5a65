package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate [node-id]",
	Short: "Generate an assistant reply for a node",
	Long: `Ask the model to reply to a node. Without an id, replies to the
current node. The model sees the full path from the root plus relevant
context gathered from other branches.

Examples:
  loom generate
  loom generate node_3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := api()

	var target string
	if len(args) == 1 {
		target = args[0]
	} else {
		view, err := c.Tree(ctx)
		if err != nil {
			return fmt.Errorf("fetch tree: %w", err)
		}
		if view.CurrentID == "" {
			return fmt.Errorf("empty tree, nothing to reply to")
		}
		target = view.CurrentID
	}

	reply, err := c.Generate(ctx, target)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if reply == "" {
		fmt.Println("No reply generated.")
		return nil
	}

	fmt.Println(reply)
	return nil
}
