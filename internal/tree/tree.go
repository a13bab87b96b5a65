package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loomchat/loom/internal/config"
	"github.com/loomchat/loom/internal/llm"
	"github.com/loomchat/loom/internal/metrics"
)

// ErrNodeNotFound is returned when an id does not name a live node.
var ErrNodeNotFound = errors.New("node not found")

// EventType classifies tree change notifications.
type EventType string

const (
	EventNodeAdded   EventType = "node_added"
	EventNodeDeleted EventType = "node_deleted"
	EventNodeUpdated EventType = "node_updated"
)

// Event describes one tree mutation, delivered to subscribers after the
// mutation is visible.
type Event struct {
	Type   EventType `json:"type"`
	NodeID string    `json:"nodeId"`
}

// Tree is the conversational tree: an arena of nodes indexed by id, with
// root/current pointers and an embedded operation tracker. All exported
// methods are safe for concurrent use; mutations are atomic, so a reader
// never observes a half-updated node.
type Tree struct {
	mu        sync.RWMutex
	nodes     map[string]*Node
	rootID    string
	currentID string
	nextID    int
	nextSeq   int

	embedder llm.Embedder
	scoring  config.Scoring
	ops      *Tracker
	stats    *metrics.Collector

	subMu       sync.Mutex
	subscribers []func(Event)
}

// Option configures a Tree.
type Option func(*Tree)

// WithScoring overrides the default relevance-scoring constants.
func WithScoring(s config.Scoring) Option {
	return func(t *Tree) { t.scoring = s }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Tree) { t.stats = c }
}

// New creates an empty tree. The embedder may be resilient (never failing);
// if nil, every node gets a deterministic local fallback vector.
func New(embedder llm.Embedder, opts ...Option) *Tree {
	if embedder == nil {
		embedder = llm.NewResilient(nil)
	}
	t := &Tree{
		nodes:    make(map[string]*Node),
		embedder: embedder,
		scoring:  config.DefaultScoring(),
		ops:      NewTracker(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ops exposes the embedded operation tracker.
func (t *Tree) Ops() *Tracker {
	return t.ops
}

// Subscribe registers a callback invoked after every mutation. Callbacks
// run outside the tree lock and must not block for long.
func (t *Tree) Subscribe(fn func(Event)) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}

func (t *Tree) publish(ev Event) {
	t.subMu.Lock()
	subs := append([]func(Event){}, t.subscribers...)
	t.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// AddNode creates a node and returns its id. An empty parentID creates a
// root candidate; the first node ever added becomes the root. The content
// embedding is obtained before the tree lock is taken, so the provider
// round-trip never holds up readers, and a failed provider degrades to a
// local fallback vector rather than failing the call. currentID moves to
// the new node unless the role is assistant, keeping user focus stable
// while replies append silently.
func (t *Tree) AddNode(ctx context.Context, content, parentID string, role Role) (string, error) {
	embedStart := time.Now()
	embedding, err := t.embedder.Embed(ctx, content)
	if err != nil {
		// Resilient embedders never fail; a bare provider might.
		slog.Warn("embedding failed, storing node without vector", "error", err)
		embedding = nil
	} else if t.stats != nil {
		t.stats.RecordTiming(metrics.OpEmbedding, time.Since(embedStart))
	}

	t.mu.Lock()

	if parentID != "" {
		if _, ok := t.nodes[parentID]; !ok {
			t.mu.Unlock()
			return "", fmt.Errorf("parent %s: %w", parentID, ErrNodeNotFound)
		}
	}

	start := time.Now()
	id := fmt.Sprintf("node_%d", t.nextID)
	t.nextID++

	node := &Node{
		ID:         id,
		Content:    content,
		ParentID:   parentID,
		CreatedAt:  time.Now(),
		Embedding:  embedding,
		Importance: computeImportance(content),
		Role:       role,
		seq:        t.nextSeq,
	}
	t.nextSeq++

	t.nodes[id] = node
	if parentID != "" {
		parent := t.nodes[parentID]
		parent.Children = append(parent.Children, id)
	}

	if t.rootID == "" && parentID == "" {
		t.rootID = id
	}
	if role != RoleAssistant || t.currentID == "" {
		t.currentID = id
	}

	t.recordMutation(start)
	t.mu.Unlock()

	t.publish(Event{Type: EventNodeAdded, NodeID: id})
	return id, nil
}

// DeleteNode removes a node and its entire subtree. It reports false if
// the id is unknown. Pending operations targeting any removed node are
// cancelled, and rootID/currentID are repaired if they pointed into the
// deleted subtree (preferring the earliest-created remaining root).
func (t *Tree) DeleteNode(id string) bool {
	t.mu.Lock()

	node, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return false
	}

	start := time.Now()

	// Collect the subtree breadth-first.
	removed := []string{id}
	for i := 0; i < len(removed); i++ {
		if n, ok := t.nodes[removed[i]]; ok {
			removed = append(removed, n.Children...)
		}
	}

	// Detach from the parent's child list.
	if node.ParentID != "" {
		if parent, ok := t.nodes[node.ParentID]; ok {
			parent.Children = deleteID(parent.Children, id)
		}
	}

	for _, rid := range removed {
		delete(t.nodes, rid)
	}

	t.repairPointers(removed)
	t.recordMutation(start)
	t.mu.Unlock()

	for _, rid := range removed {
		t.ops.CancelAllFor(rid, "target node deleted")
	}
	for _, rid := range removed {
		t.publish(Event{Type: EventNodeDeleted, NodeID: rid})
	}
	return true
}

// repairPointers restores the root/current invariants after a delete.
// Caller must hold the write lock.
func (t *Tree) repairPointers(removed []string) {
	gone := make(map[string]bool, len(removed))
	for _, id := range removed {
		gone[id] = true
	}

	if gone[t.rootID] {
		t.rootID = ""
		// Promote the earliest-created parentless node.
		for id, n := range t.nodes {
			if n.ParentID != "" {
				continue
			}
			if t.rootID == "" || n.seq < t.nodes[t.rootID].seq {
				t.rootID = id
			}
		}
	}

	if gone[t.currentID] {
		if t.rootID != "" {
			t.currentID = t.rootID
		} else {
			t.currentID = ""
		}
	}
}

// Get returns a copy of the node with the given id.
func (t *Tree) Get(id string) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return node.clone(), true
}

// Exists reports whether the id names a live node.
func (t *Tree) Exists(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[id]
	return ok
}

// RootID returns the current root id, or "" for an empty tree.
func (t *Tree) RootID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootID
}

// CurrentID returns the current selection id, or "" for an empty tree.
func (t *Tree) CurrentID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentID
}

// SetCurrent moves the selection pointer.
func (t *Tree) SetCurrent(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; !ok {
		return fmt.Errorf("set current %s: %w", id, ErrNodeNotFound)
	}
	t.currentID = id
	return nil
}

// Len returns the number of live nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// HasAssistantChild reports whether the node already has a generated reply.
func (t *Tree) HasAssistantChild(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return false
	}
	for _, cid := range node.Children {
		if child, ok := t.nodes[cid]; ok && child.Role == RoleAssistant {
			return true
		}
	}
	return false
}

// BeginSummary marks a node as having a summary request in flight.
// It reports false if the node is unknown or a request is already pending.
func (t *Tree) BeginSummary(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[id]
	if !ok || node.SummaryPending {
		return false
	}
	node.SummaryPending = true
	return true
}

// FinishSummary stores summary enrichment and clears the pending flag.
// Unknown ids are ignored (the node may have been deleted mid-flight).
func (t *Tree) FinishSummary(id, summary string, keywords []string) {
	t.mu.Lock()
	node, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	node.Summary = summary
	node.Keywords = append([]string(nil), keywords...)
	node.SummaryPending = false
	t.mu.Unlock()

	t.publish(Event{Type: EventNodeUpdated, NodeID: id})
}

// AbortSummary clears the pending flag without storing anything.
func (t *Tree) AbortSummary(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if node, ok := t.nodes[id]; ok {
		node.SummaryPending = false
	}
}

// Link is one parent-child edge in the flat projection.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// TreeData returns a flat projection of all nodes and edges for external
// rendering, ordered by insertion.
func (t *Tree) TreeData() ([]Node, []Link) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodes := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		nodes = append(nodes, n.clone())
	}
	sortBySeq(nodes)

	links := make([]Link, 0, len(nodes))
	for _, n := range nodes {
		if n.ParentID != "" {
			links = append(links, Link{Source: n.ParentID, Target: n.ID})
		}
	}
	return nodes, links
}

// IsNodePending reports whether any generation operation targets the node.
func (t *Tree) IsNodePending(id string) bool {
	return t.ops.IsNodePending(id)
}

func (t *Tree) recordMutation(start time.Time) {
	if t.stats != nil {
		t.stats.RecordTiming(metrics.OpTreeMutate, time.Since(start))
	}
}

func deleteID(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func sortBySeq(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].seq < nodes[j].seq
	})
}
