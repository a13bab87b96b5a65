package tree

import (
	"context"
	"testing"

	"github.com/loomchat/loom/internal/vector"
)

// vectorEmbedder returns canned vectors per text so similarity is
// controllable from the test.
type vectorEmbedder struct {
	vectors map[string][]float32
}

func (e *vectorEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return vector.Hash(text, 4), nil
}

func (e *vectorEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (e *vectorEmbedder) Dimension() int { return 4 }

func TestRelevantContextPathAndSiblings(t *testing.T) {
	tr := newTestTree(t)

	root := mustAdd(t, tr, "root topic", "", RoleUser)
	mid := mustAdd(t, tr, "middle turn", root, RoleUser)
	sibling := mustAdd(t, tr, "alternative branch", root, RoleUser)
	leaf := mustAdd(t, tr, "the question", mid, RoleUser)

	entries, err := tr.RelevantContext(leaf, 10)
	if err != nil {
		t.Fatal(err)
	}

	byID := map[string]ContextEntry{}
	for _, e := range entries {
		if e.Node.ID == leaf {
			t.Error("context must never include the target itself")
		}
		byID[e.Node.ID] = e
	}

	if e, ok := byID[root]; !ok || e.Reason != ReasonPath || e.Proximity != ProximityClose {
		t.Errorf("root entry = %+v, want reason=path proximity=close", e)
	}
	if e, ok := byID[mid]; !ok || e.Reason != ReasonPath {
		t.Errorf("mid entry = %+v, want reason=path", e)
	}
	// The sibling of leaf's parent is off-path but not leaf's sibling;
	// leaf itself has no siblings, and `sibling` is not reachable as one.
	if e, ok := byID[sibling]; ok && e.Reason == ReasonSibling {
		t.Errorf("unexpected sibling classification for %s: %+v", sibling, e)
	}

	// Scores are non-increasing.
	for i := 1; i < len(entries); i++ {
		if entries[i].Score > entries[i-1].Score {
			t.Errorf("scores out of order at %d: %v > %v", i, entries[i].Score, entries[i-1].Score)
		}
	}
}

func TestRelevantContextSiblingReason(t *testing.T) {
	tr := newTestTree(t)

	root := mustAdd(t, tr, "root topic", "", RoleUser)
	target := mustAdd(t, tr, "first branch", root, RoleUser)
	sibling := mustAdd(t, tr, "second branch", root, RoleUser)

	entries, err := tr.RelevantContext(target, 10)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, e := range entries {
		if e.Node.ID == sibling {
			found = true
			if e.Reason != ReasonSibling || e.Proximity != ProximityMedium {
				t.Errorf("sibling entry = %+v, want reason=sibling proximity=medium", e)
			}
		}
	}
	if !found {
		t.Error("sibling missing from context")
	}
}

func TestRelevantContextSemantic(t *testing.T) {
	emb := &vectorEmbedder{vectors: map[string][]float32{
		"quantum computing basics": {1, 0, 0, 0},
		"quantum error correction": {0.98, 0.05, 0, 0},
		"gardening tips":           {0, 1, 0, 0},
	}}
	tr := New(emb)
	ctx := context.Background()

	root, _ := tr.AddNode(ctx, "root", "", RoleUser)
	a, _ := tr.AddNode(ctx, "quantum computing basics", root, RoleUser)
	_, _ = tr.AddNode(ctx, "gardening tips", root, RoleUser)

	// Unrelated part of the tree holding a semantically similar node.
	other, _ := tr.AddNode(ctx, "unrelated subtree", root, RoleUser)
	similar, _ := tr.AddNode(ctx, "quantum error correction", other, RoleUser)

	entries, err := tr.RelevantContext(a, 10)
	if err != nil {
		t.Fatal(err)
	}

	var got *ContextEntry
	for i := range entries {
		if entries[i].Node.ID == similar {
			got = &entries[i]
		}
	}
	if got == nil {
		t.Fatal("semantically similar node missing from context")
	}
	if got.Reason != ReasonSemantic {
		t.Errorf("reason = %s, want semantic", got.Reason)
	}
	if got.Proximity != ProximityClose {
		t.Errorf("proximity = %s, want close (cosine > 0.8)", got.Proximity)
	}
}

func TestRelevantContextMaxResults(t *testing.T) {
	tr := newTestTree(t)

	root := mustAdd(t, tr, "root", "", RoleUser)
	prev := root
	for i := 0; i < 10; i++ {
		prev = mustAdd(t, tr, "turn", prev, RoleUser)
	}

	entries, err := tr.RelevantContext(prev, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) > 3 {
		t.Errorf("got %d entries, want <= 3", len(entries))
	}

	t.Run("default cap", func(t *testing.T) {
		entries, err := tr.RelevantContext(prev, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) > DefaultMaxContext {
			t.Errorf("got %d entries, want <= %d", len(entries), DefaultMaxContext)
		}
	})
}

func TestRelevantContextUnknownNode(t *testing.T) {
	tr := newTestTree(t)
	if _, err := tr.RelevantContext("node_404", 5); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestRelevantContextFirstReasonWins(t *testing.T) {
	// A sibling that is also semantically similar must keep reason=sibling.
	emb := &vectorEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0, 0},
		"beta":  {0.99, 0.01, 0, 0},
	}}
	tr := New(emb)
	ctx := context.Background()

	root, _ := tr.AddNode(ctx, "root", "", RoleUser)
	target, _ := tr.AddNode(ctx, "alpha", root, RoleUser)
	sibling, _ := tr.AddNode(ctx, "beta", root, RoleUser)

	entries, err := tr.RelevantContext(target, 10)
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	for _, e := range entries {
		if e.Node.ID == sibling {
			count++
			if e.Reason != ReasonSibling {
				t.Errorf("reason = %s, want sibling (dedup keeps first reason)", e.Reason)
			}
		}
	}
	if count != 1 {
		t.Errorf("sibling appeared %d times, want exactly once", count)
	}
}
