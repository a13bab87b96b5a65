package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	addParent string
	addRole   string
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a message to the conversation tree",
	Long: `Add a message to the conversation tree.

Without --parent the message attaches to the current node (or becomes the
root of an empty tree). Use --role note for annotations the model should
see as context but never reply to directly.

Examples:
  loom add "How do lighthouses work?"
  loom add "What about lightships?" --parent node_3
  loom add "remember: user prefers short answers" --role note`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addParent, "parent", "p", "", "parent node id (default: current node)")
	addCmd.Flags().StringVarP(&addRole, "role", "r", "user", "message role (user, assistant, note)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := api()

	parent := addParent
	if parent == "" {
		view, err := c.Tree(ctx)
		if err != nil {
			return fmt.Errorf("fetch tree: %w", err)
		}
		parent = view.CurrentID
	}

	id, err := c.AddNode(ctx, args[0], parent, addRole)
	if err != nil {
		return fmt.Errorf("add node: %w", err)
	}

	fmt.Printf("Created %s\n", id)
	if verbose && parent != "" {
		fmt.Printf("  Parent: %s\n", parent)
	}
	return nil
}
