package tree

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// SnapshotVersion is the current export format version.
const SnapshotVersion = 1

// SnapshotNode is the portable form of one node. Embeddings are not part of
// the snapshot; they are recomputed on import.
type SnapshotNode struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	ParentID  string    `json:"parentId,omitempty"`
	Role      string    `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
}

// Snapshot is the export format: a versioned flat node list.
type Snapshot struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Nodes      []SnapshotNode `json:"nodes"`
}

var nodeIDPattern = regexp.MustCompile(`^node_(\d+)$`)

// Export produces a snapshot of the whole tree in insertion order.
func (t *Tree) Export() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodes := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].seq < nodes[j].seq })

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now().UTC(),
		Nodes:      make([]SnapshotNode, len(nodes)),
	}
	for i, n := range nodes {
		snap.Nodes[i] = SnapshotNode{
			ID:        n.ID,
			Content:   n.Content,
			ParentID:  n.ParentID,
			Role:      string(n.Role),
			Timestamp: n.CreatedAt,
			Summary:   n.Summary,
			Keywords:  append([]string(nil), n.Keywords...),
		}
	}
	return snap
}

// ValidateSnapshot checks a snapshot before any mutation happens, so a
// malformed import rejects cleanly without leaving a partial tree.
func ValidateSnapshot(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	seen := make(map[string]bool, len(snap.Nodes))
	for i, n := range snap.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d: missing id", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("node %d: duplicate id %s", i, n.ID)
		}
		seen[n.ID] = true
		if n.Content == "" {
			return fmt.Errorf("node %d: missing content", i)
		}
		if n.Timestamp.IsZero() {
			return fmt.Errorf("node %d: missing timestamp", i)
		}
	}
	return nil
}

// Import replaces the tree contents with the snapshot. Nodes are inserted
// in timestamp order; ids matching node_<integer> are preserved, others are
// regenerated. Parent links referencing nodes absent from the batch leave
// the node as an orphaned root. The earliest-timestamped parentless node
// becomes root and current. The embeddings map (keyed by original snapshot
// id) is optional; missing entries leave the node without a vector.
func (t *Tree) Import(snap Snapshot, embeddings map[string][]float32) error {
	if err := ValidateSnapshot(snap); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	ordered := append([]SnapshotNode(nil), snap.Nodes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	t.mu.Lock()

	t.nodes = make(map[string]*Node, len(ordered))
	t.rootID = ""
	t.currentID = ""

	// First pass: decide ids, keeping nextID ahead of every preserved id.
	idMap := make(map[string]string, len(ordered))
	for _, sn := range ordered {
		if m := nodeIDPattern.FindStringSubmatch(sn.ID); m != nil {
			idMap[sn.ID] = sn.ID
			if n, err := strconv.Atoi(m[1]); err == nil && n >= t.nextID {
				t.nextID = n + 1
			}
		} else {
			id := fmt.Sprintf("node_%d", t.nextID)
			t.nextID++
			idMap[sn.ID] = id
		}
	}

	// Second pass: materialize nodes.
	for _, sn := range ordered {
		id := idMap[sn.ID]

		parentID := ""
		if sn.ParentID != "" {
			if mapped, ok := idMap[sn.ParentID]; ok {
				parentID = mapped
			}
			// Unknown parent: accepted as an orphaned root.
		}

		node := &Node{
			ID:         id,
			Content:    sn.Content,
			ParentID:   parentID,
			CreatedAt:  sn.Timestamp,
			Embedding:  embeddings[sn.ID],
			Importance: computeImportance(sn.Content),
			Role:       ParseRole(sn.Role),
			Summary:    sn.Summary,
			Keywords:   append([]string(nil), sn.Keywords...),
			seq:        t.nextSeq,
		}
		t.nextSeq++
		t.nodes[id] = node

		if parentID == "" && t.rootID == "" {
			t.rootID = id
		}
	}

	// Third pass: rebuild child lists once every node exists. A child may
	// carry an earlier timestamp than its parent.
	for _, sn := range ordered {
		id := idMap[sn.ID]
		if pid := t.nodes[id].ParentID; pid != "" {
			parent := t.nodes[pid]
			parent.Children = append(parent.Children, id)
		}
	}

	t.currentID = t.rootID
	t.mu.Unlock()

	t.publish(Event{Type: EventNodeUpdated, NodeID: t.RootID()})
	return nil
}
