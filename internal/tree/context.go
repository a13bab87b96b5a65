package tree

import (
	"math"
	"sort"
	"time"

	"github.com/loomchat/loom/internal/metrics"
	"github.com/loomchat/loom/internal/vector"
)

// Proximity is the qualitative closeness bucket used in context ranking.
type Proximity string

const (
	ProximityClose  Proximity = "close"
	ProximityMedium Proximity = "medium"
	ProximityFar    Proximity = "far"
)

// Reason explains why a node was selected as context.
type Reason string

const (
	ReasonPath     Reason = "path"
	ReasonSibling  Reason = "sibling"
	ReasonSemantic Reason = "semantic"
)

// ContextEntry is one ranked candidate for the generation context.
type ContextEntry struct {
	Node      Node      `json:"node"`
	Proximity Proximity `json:"proximity"`
	Reason    Reason    `json:"reason"`
	Score     float64   `json:"score"`
}

// DefaultMaxContext is the number of entries RelevantContext returns when
// the caller passes maxResults <= 0.
const DefaultMaxContext = 5

// RelevantContext ranks the nodes most relevant to the target:
// ancestors on its path, siblings off the path, and any other node whose
// embedding is semantically similar. Candidates are deduplicated by id
// (first reason wins) and the target itself is never returned. Results are
// ordered by non-increasing score with ties broken by insertion order.
func (t *Tree) RelevantContext(id string, maxResults int) ([]ContextEntry, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxContext
	}

	start := time.Now()
	t.mu.RLock()

	target, ok := t.nodes[id]
	if !ok {
		t.mu.RUnlock()
		return nil, ErrNodeNotFound
	}

	pathIDs, _ := t.pathLocked(id)
	onPath := make(map[string]bool, len(pathIDs))
	for _, pid := range pathIDs {
		onPath[pid] = true
	}

	seen := map[string]bool{id: true}
	var entries []ContextEntry

	add := func(n *Node, prox Proximity, reason Reason) {
		if seen[n.ID] {
			return
		}
		seen[n.ID] = true
		entries = append(entries, ContextEntry{
			Node:      n.clone(),
			Proximity: prox,
			Reason:    reason,
			Score:     t.score(n, target, prox),
		})
	}

	// Ancestors on the path, nearest the root first.
	for _, pid := range pathIDs {
		if pid == id {
			continue
		}
		add(t.nodes[pid], ProximityClose, ReasonPath)
	}

	// Siblings not already on the path.
	if target.ParentID != "" {
		if parent, ok := t.nodes[target.ParentID]; ok {
			for _, cid := range parent.Children {
				if sib, ok := t.nodes[cid]; ok && !onPath[cid] {
					add(sib, ProximityMedium, ReasonSibling)
				}
			}
		}
	}

	// Semantically similar nodes anywhere else in the tree. Candidates are
	// walked in insertion order so dedup and tie-breaks stay deterministic.
	rest := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		rest = append(rest, n)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].seq < rest[j].seq })

	for _, n := range rest {
		if seen[n.ID] {
			continue
		}
		sim := vector.Cosine(target.Embedding, n.Embedding)
		if sim <= t.scoring.SemanticThreshold {
			continue
		}
		prox := ProximityMedium
		if sim > t.scoring.CloseThreshold {
			prox = ProximityClose
		}
		add(n, prox, ReasonSemantic)
	}

	t.mu.RUnlock()

	// Stable sort preserves insertion order between equal scores.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	if len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	if t.stats != nil {
		t.stats.RecordTiming(metrics.OpContext, time.Since(start))
	}
	return entries, nil
}

// score combines importance, proximity, and temporal distance from the
// target. All constants come from the scoring config.
func (t *Tree) score(n, target *Node, prox Proximity) float64 {
	var proximityWeight float64
	switch prox {
	case ProximityClose:
		proximityWeight = t.scoring.CloseWeight
	case ProximityMedium:
		proximityWeight = t.scoring.MediumWeight
	default:
		proximityWeight = t.scoring.FarWeight
	}

	hours := math.Abs(target.CreatedAt.Sub(n.CreatedAt).Hours())
	recency := math.Max(0, t.scoring.RecencyCap-hours*t.scoring.RecencyDecayHour)

	return t.scoring.ImportanceWeight*n.Importance + proximityWeight + recency
}
