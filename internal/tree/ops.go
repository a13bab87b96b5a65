package tree

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OpStatus represents the state of a tracked generation operation.
type OpStatus string

const (
	OpPending   OpStatus = "pending"
	OpCompleted OpStatus = "completed"
	OpFailed    OpStatus = "failed"
	OpCancelled OpStatus = "cancelled"
)

// Operation records one in-flight "generate a reply for node X" request.
// It exists so a slow or failed request resolving after the target node was
// deleted or superseded cannot corrupt the tree.
type Operation struct {
	ID           string     `json:"opId"`
	TargetNodeID string     `json:"targetNodeId"`
	Status       OpStatus   `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// defaultRetention is how long terminal operation records are kept for
// observability before eviction. Bounded memory, not a correctness concern.
const defaultRetention = 5 * time.Minute

// Tracker manages concurrent generation operations, indexed by operation id
// and by target node (one-to-many). All methods are safe for concurrent use
// and never panic or propagate errors: a failed or cancelled operation is
// recorded, not thrown.
type Tracker struct {
	mu        sync.Mutex
	ops       map[string]*Operation
	byNode    map[string]map[string]struct{}
	retention time.Duration
}

// NewTracker creates an empty tracker with the default retention window.
func NewTracker() *Tracker {
	return &Tracker{
		ops:       make(map[string]*Operation),
		byNode:    make(map[string]map[string]struct{}),
		retention: defaultRetention,
	}
}

// Create registers a pending operation for the target node and returns
// its id.
func (tr *Tracker) Create(targetNodeID string) string {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.evictLocked()

	op := &Operation{
		ID:           uuid.New().String()[:8],
		TargetNodeID: targetNodeID,
		Status:       OpPending,
		CreatedAt:    time.Now(),
	}
	tr.ops[op.ID] = op

	pending, ok := tr.byNode[targetNodeID]
	if !ok {
		pending = make(map[string]struct{})
		tr.byNode[targetNodeID] = pending
	}
	pending[op.ID] = struct{}{}

	slog.Debug("operation created", "op_id", op.ID, "node_id", targetNodeID)
	return op.ID
}

// Complete marks the operation terminal. Completing an operation that is
// already terminal (or unknown) is a no-op, so late resolutions of
// cancelled requests are simply ignored.
func (tr *Tracker) Complete(opID string, success bool) {
	status := OpCompleted
	if !success {
		status = OpFailed
	}
	tr.finish(opID, status, "")
}

// Cancel marks the operation cancelled, recording why. Used when the
// target node disappears mid-flight.
func (tr *Tracker) Cancel(opID, reason string) {
	tr.finish(opID, OpCancelled, reason)
}

// CancelAllFor cancels every pending operation targeting the node.
func (tr *Tracker) CancelAllFor(nodeID, reason string) {
	tr.mu.Lock()
	var ids []string
	for opID := range tr.byNode[nodeID] {
		ids = append(ids, opID)
	}
	tr.mu.Unlock()

	for _, opID := range ids {
		tr.Cancel(opID, reason)
	}
}

// IsNodePending reports whether any pending operation targets the node.
func (tr *Tracker) IsNodePending(nodeID string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.byNode[nodeID]) > 0
}

// IsPending reports whether the operation exists and is still pending.
func (tr *Tracker) IsPending(opID string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	op, ok := tr.ops[opID]
	return ok && op.Status == OpPending
}

// Get returns a copy of the operation record.
func (tr *Tracker) Get(opID string) (Operation, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	op, ok := tr.ops[opID]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// List returns copies of all retained operations.
func (tr *Tracker) List() []Operation {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make([]Operation, 0, len(tr.ops))
	for _, op := range tr.ops {
		out = append(out, *op)
	}
	return out
}

func (tr *Tracker) finish(opID string, status OpStatus, reason string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	op, ok := tr.ops[opID]
	if !ok || op.Status != OpPending {
		return
	}

	now := time.Now()
	op.Status = status
	op.Reason = reason
	op.CompletedAt = &now

	if pending, ok := tr.byNode[op.TargetNodeID]; ok {
		delete(pending, opID)
		if len(pending) == 0 {
			delete(tr.byNode, op.TargetNodeID)
		}
	}

	slog.Debug("operation finished", "op_id", opID, "status", status, "reason", reason)
	tr.evictLocked()
}

// evictLocked drops terminal records older than the retention window.
// Caller must hold the lock.
func (tr *Tracker) evictLocked() {
	cutoff := time.Now().Add(-tr.retention)
	for id, op := range tr.ops {
		if op.Status != OpPending && op.CompletedAt != nil && op.CompletedAt.Before(cutoff) {
			delete(tr.ops, id)
		}
	}
}
