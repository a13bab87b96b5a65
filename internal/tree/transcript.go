package tree

import (
	"fmt"
	"time"
)

// TranscriptMessage is one turn of a third-party conversation export.
type TranscriptMessage struct {
	Role string `json:"role"`
	Say  string `json:"say"`
}

// Transcript is the external transformation format: a flat, linear
// conversation from another tool.
type Transcript struct {
	Messages []TranscriptMessage `json:"messages"`
}

// TranscriptToSnapshot converts a linear transcript into a snapshot: a
// synthetic welcome root plus one node per message, chained in order.
func TranscriptToSnapshot(tr Transcript) (Snapshot, error) {
	if len(tr.Messages) == 0 {
		return Snapshot{}, fmt.Errorf("transcript has no messages")
	}
	for i, m := range tr.Messages {
		if m.Say == "" {
			return Snapshot{}, fmt.Errorf("transcript message %d: missing text", i)
		}
	}

	base := time.Now().UTC()
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: base,
		Nodes: []SnapshotNode{{
			ID:        "imported_root",
			Content:   "Imported conversation",
			Role:      string(RoleNote),
			Timestamp: base,
		}},
	}

	prev := "imported_root"
	for i, m := range tr.Messages {
		id := fmt.Sprintf("imported_%d", i)
		snap.Nodes = append(snap.Nodes, SnapshotNode{
			ID:       id,
			Content:  m.Say,
			ParentID: prev,
			Role:     string(ParseRole(m.Role)),
			// Spread timestamps so import ordering is stable.
			Timestamp: base.Add(time.Duration(i+1) * time.Millisecond),
		})
		prev = id
	}

	return snap, nil
}
