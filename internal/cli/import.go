package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/loomchat/loom/internal/tree"
)

var importTranscript bool

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import a snapshot or transcript file",
	Long: `Import a conversation into the server.

By default the file is a snapshot produced by 'loom export'. With
--transcript the file is a flat {"messages": [{"role", "say"}]} chat log
that gets rebuilt as a linear branch under a fresh root.

Imports are all-or-nothing: a malformed file changes nothing.

Examples:
  loom import backup.json
  loom import chatlog.json --transcript`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importTranscript, "transcript", false, "treat the file as a flat chat transcript")
}

func runImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	c := api()
	var total int
	var run func(ctx context.Context) error

	if importTranscript {
		var transcript tree.Transcript
		if err := json.Unmarshal(raw, &transcript); err != nil {
			return fmt.Errorf("parse transcript: %w", err)
		}
		total = len(transcript.Messages)
		run = func(ctx context.Context) error {
			return c.ImportTranscript(ctx, transcript)
		}
	} else {
		var snap tree.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		total = len(snap.Nodes)
		run = func(ctx context.Context) error {
			return c.Import(ctx, snap)
		}
	}

	// The animated progress display only makes sense on a real terminal.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		if err := run(context.Background()); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		fmt.Printf("Imported %d nodes\n", total)
		return nil
	}

	return RunImportProgress(total, run)
}
