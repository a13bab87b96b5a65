package tree

import (
	"context"
	"testing"
	"time"
)

func TestExportImportRoundTrip(t *testing.T) {
	tr := newTestTree(t)

	root := mustAdd(t, tr, "root question", "", RoleUser)
	reply := mustAdd(t, tr, "first answer", root, RoleAssistant)
	branch := mustAdd(t, tr, "a different angle", root, RoleUser)
	mustAdd(t, tr, "deeper", reply, RoleUser)
	tr.FinishSummary(branch, "different angle", []string{"angle"})

	snap := tr.Export()
	if snap.Version != SnapshotVersion {
		t.Fatalf("version = %d, want %d", snap.Version, SnapshotVersion)
	}
	if len(snap.Nodes) != 4 {
		t.Fatalf("exported %d nodes, want 4", len(snap.Nodes))
	}

	restored := newTestTree(t)
	if err := restored.Import(snap, nil); err != nil {
		t.Fatal(err)
	}

	if restored.Len() != tr.Len() {
		t.Fatalf("restored %d nodes, want %d", restored.Len(), tr.Len())
	}

	// Structure is isomorphic: same parent content relations.
	origNodes, origLinks := tr.TreeData()
	restNodes, restLinks := restored.TreeData()
	if len(origLinks) != len(restLinks) {
		t.Errorf("links = %d, want %d", len(restLinks), len(origLinks))
	}

	contentByID := func(nodes []Node) map[string]string {
		m := make(map[string]string)
		for _, n := range nodes {
			m[n.ID] = n.Content
		}
		return m
	}
	origContent := contentByID(origNodes)
	restContent := contentByID(restNodes)

	edge := func(content map[string]string, links []Link) map[[2]string]bool {
		m := make(map[[2]string]bool)
		for _, l := range links {
			m[[2]string{content[l.Source], content[l.Target]}] = true
		}
		return m
	}
	origEdges := edge(origContent, origLinks)
	for e := range edge(restContent, restLinks) {
		if !origEdges[e] {
			t.Errorf("unexpected edge %v in restored tree", e)
		}
	}

	// Root and current land on the earliest parentless node.
	rootNode, _ := restored.Get(restored.RootID())
	if rootNode.Content != "root question" {
		t.Errorf("restored root content = %q", rootNode.Content)
	}
	if restored.CurrentID() != restored.RootID() {
		t.Error("current should equal root after import")
	}

	// Summaries survive the round trip.
	found := false
	for _, n := range restNodes {
		if n.Content == "a different angle" && n.Summary == "different angle" {
			found = true
		}
	}
	if !found {
		t.Error("summary lost in round trip")
	}
}

func TestImportPreservesWellFormedIDs(t *testing.T) {
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now(),
		Nodes: []SnapshotNode{
			{ID: "node_5", Content: "kept id", Timestamp: time.Now()},
			{ID: "legacy-abc", Content: "regenerated id", ParentID: "node_5", Timestamp: time.Now().Add(time.Second)},
		},
	}

	tr := newTestTree(t)
	if err := tr.Import(snap, nil); err != nil {
		t.Fatal(err)
	}

	if _, ok := tr.Get("node_5"); !ok {
		t.Error("well-formed id should be preserved")
	}
	if _, ok := tr.Get("legacy-abc"); ok {
		t.Error("malformed id should have been regenerated")
	}

	// New ids never collide with preserved ones.
	id, err := tr.AddNode(context.Background(), "fresh", "", RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	if id == "node_5" {
		t.Error("id counter did not advance past imported ids")
	}
}

func TestImportRejectsMalformedBatch(t *testing.T) {
	tr := newTestTree(t)
	mustAdd(t, tr, "existing", "", RoleUser)

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now(),
		Nodes: []SnapshotNode{
			{ID: "node_1", Content: "fine", Timestamp: time.Now()},
			{ID: "node_2", Content: "", Timestamp: time.Now()}, // missing content
		},
	}

	if err := tr.Import(snap, nil); err == nil {
		t.Fatal("expected validation error")
	}

	// No partial mutation: the existing tree is untouched.
	if tr.Len() != 1 {
		t.Errorf("tree mutated by rejected import: %d nodes", tr.Len())
	}

	t.Run("bad version", func(t *testing.T) {
		err := tr.Import(Snapshot{Version: 2}, nil)
		if err == nil {
			t.Error("expected version error")
		}
	})

	t.Run("duplicate ids", func(t *testing.T) {
		now := time.Now()
		dup := Snapshot{
			Version:    SnapshotVersion,
			ExportedAt: now,
			Nodes: []SnapshotNode{
				{ID: "node_0", Content: "root", Timestamp: now},
				{ID: "node_1", Content: "first", ParentID: "node_0", Timestamp: now.Add(time.Second)},
				{ID: "node_1", Content: "second", ParentID: "node_0", Timestamp: now.Add(2 * time.Second)},
			},
		}
		if err := tr.Import(dup, nil); err == nil {
			t.Error("expected duplicate id error")
		}
		if tr.Len() != 1 {
			t.Errorf("tree mutated by rejected import: %d nodes", tr.Len())
		}
	})

	t.Run("empty ids", func(t *testing.T) {
		now := time.Now()
		blank := Snapshot{
			Version:    SnapshotVersion,
			ExportedAt: now,
			Nodes: []SnapshotNode{
				{ID: "", Content: "one", Timestamp: now},
				{ID: "", Content: "two", Timestamp: now.Add(time.Second)},
			},
		}
		if err := tr.Import(blank, nil); err == nil {
			t.Error("expected missing id error")
		}
	})
}

func TestImportOrphanedParentBecomesRoot(t *testing.T) {
	// A parentId referencing a node absent from the batch is accepted:
	// the node simply becomes an extra parentless root.
	now := time.Now()
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: now,
		Nodes: []SnapshotNode{
			{ID: "node_1", Content: "real root", Timestamp: now},
			{ID: "node_2", Content: "orphan", ParentID: "node_99", Timestamp: now.Add(time.Second)},
		},
	}

	tr := newTestTree(t)
	if err := tr.Import(snap, nil); err != nil {
		t.Fatal(err)
	}

	orphan, ok := tr.Get("node_2")
	if !ok {
		t.Fatal("orphan missing")
	}
	if orphan.ParentID != "" {
		t.Errorf("orphan parent = %q, want empty", orphan.ParentID)
	}
	// The earliest-timestamped parentless node is still the root.
	if got, _ := tr.Get(tr.RootID()); got.Content != "real root" {
		t.Errorf("root content = %q", got.Content)
	}
}

func TestTranscriptToSnapshot(t *testing.T) {
	snap, err := TranscriptToSnapshot(Transcript{Messages: []TranscriptMessage{
		{Role: "user", Say: "hello"},
		{Role: "assistant", Say: "hi there"},
		{Role: "user", Say: "tell me more"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	// Synthetic welcome root plus one node per message.
	if len(snap.Nodes) != 4 {
		t.Fatalf("got %d nodes, want 4", len(snap.Nodes))
	}

	tr := newTestTree(t)
	if err := tr.Import(snap, nil); err != nil {
		t.Fatal(err)
	}

	// Linear chain: each message hangs off the previous one.
	rootNode, _ := tr.Get(tr.RootID())
	if len(rootNode.Children) != 1 {
		t.Fatalf("root children = %d, want 1", len(rootNode.Children))
	}

	depth := 0
	id := tr.RootID()
	for {
		n, _ := tr.Get(id)
		if len(n.Children) == 0 {
			break
		}
		id = n.Children[0]
		depth++
	}
	if depth != 3 {
		t.Errorf("chain depth = %d, want 3", depth)
	}

	t.Run("empty transcript rejected", func(t *testing.T) {
		if _, err := TranscriptToSnapshot(Transcript{}); err == nil {
			t.Error("expected error")
		}
	})
}
