package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/loomchat/loom/internal/client"
	"github.com/loomchat/loom/internal/tree"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the conversation tree",
	Long: `Print the conversation tree with one line per node.

The current node is marked with an arrow. Assistant replies are dimmed
so the user's branch structure stands out.

Examples:
  loom tree
  loom tree -v`,
	Args: cobra.NoArgs,
	RunE: runTree,
}

var (
	currentMarkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true)
	assistantStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	noteStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF00")).Italic(true)
)

func runTree(cmd *cobra.Command, args []string) error {
	view, err := api().Tree(context.Background())
	if err != nil {
		return fmt.Errorf("fetch tree: %w", err)
	}

	if len(view.Nodes) == 0 {
		fmt.Println("Empty tree. Use 'loom add' to start a conversation.")
		return nil
	}

	byID := make(map[string]tree.Node, len(view.Nodes))
	for _, n := range view.Nodes {
		byID[n.ID] = n
	}

	// Roots in creation order; the server returns nodes already sorted.
	var roots []string
	for _, n := range view.Nodes {
		if n.ParentID == "" || byID[n.ParentID].ID == "" {
			roots = append(roots, n.ID)
		}
	}

	for _, rid := range roots {
		printSubtree(view, byID, rid, "", true)
	}
	return nil
}

func printSubtree(view *client.TreeView, byID map[string]tree.Node, id, prefix string, last bool) {
	n, ok := byID[id]
	if !ok {
		return
	}

	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	if prefix == "" && last {
		connector = ""
		childPrefix = ""
	}

	line := fmt.Sprintf("%s [%s] %s", n.ID, n.Role, summarizeLine(n))
	switch n.Role {
	case tree.RoleAssistant:
		line = assistantStyle.Render(line)
	case tree.RoleNote:
		line = noteStyle.Render(line)
	}
	if n.ID == view.CurrentID {
		line += currentMarkStyle.Render("  ← current")
	}
	fmt.Println(prefix + connector + line)

	// Children are already in insertion order.
	children := n.Children
	for i, cid := range children {
		printSubtree(view, byID, cid, childPrefix, i == len(children)-1)
	}
}

// summarizeLine picks the most compact one-line form of a node.
func summarizeLine(n tree.Node) string {
	text := n.Summary
	if text == "" || verbose {
		text = n.Content
	}
	text = strings.Join(strings.Fields(text), " ")
	if !verbose && len(text) > 60 {
		text = text[:57] + "..."
	}
	return text
}
