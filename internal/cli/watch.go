package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomchat/loom/internal/tree"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream tree change events from the server",
	Long: `Subscribe to the server's websocket feed and print every tree
change as it happens, until interrupted with Ctrl+C.

Examples:
  loom watch`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching for tree changes (Ctrl+C to stop)...")
	err := api().Watch(ctx, func(ev tree.Event) {
		fmt.Printf("%s  %-12s %s\n", time.Now().Format("15:04:05"), ev.Type, ev.NodeID)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
