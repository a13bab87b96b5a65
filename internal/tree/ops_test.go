package tree

import (
	"testing"
	"time"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	opID := tr.Create("node_1")
	if !tr.IsPending(opID) {
		t.Fatal("new operation should be pending")
	}
	if !tr.IsNodePending("node_1") {
		t.Fatal("node should be pending")
	}

	tr.Complete(opID, true)

	op, ok := tr.Get(opID)
	if !ok {
		t.Fatal("operation record missing")
	}
	if op.Status != OpCompleted {
		t.Errorf("status = %s, want completed", op.Status)
	}
	if op.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if tr.IsNodePending("node_1") {
		t.Error("node should no longer be pending")
	}
}

func TestTrackerConcurrentOpsIndependent(t *testing.T) {
	tr := NewTracker()

	// Several pending operations may target the same node; finishing one
	// never affects the others.
	op1 := tr.Create("node_7")
	op2 := tr.Create("node_7")
	op3 := tr.Create("node_7")

	tr.Complete(op1, false)
	tr.Cancel(op2, "superseded")

	if !tr.IsPending(op3) {
		t.Error("op3 should still be pending")
	}
	if !tr.IsNodePending("node_7") {
		t.Error("node should still be pending while op3 is open")
	}

	if op, _ := tr.Get(op1); op.Status != OpFailed {
		t.Errorf("op1 status = %s, want failed", op.Status)
	}
	if op, _ := tr.Get(op2); op.Status != OpCancelled || op.Reason != "superseded" {
		t.Errorf("op2 = %+v, want cancelled/superseded", op)
	}

	tr.Complete(op3, true)
	if tr.IsNodePending("node_7") {
		t.Error("node should have no pending operations left")
	}
}

func TestTrackerTerminalIsFinal(t *testing.T) {
	tr := NewTracker()

	opID := tr.Create("node_1")
	tr.Cancel(opID, "target node deleted")

	// A late completion of a cancelled operation is ignored.
	tr.Complete(opID, true)

	op, _ := tr.Get(opID)
	if op.Status != OpCancelled {
		t.Errorf("status = %s, want cancelled to stick", op.Status)
	}
}

func TestTrackerCancelAllFor(t *testing.T) {
	tr := NewTracker()

	a := tr.Create("node_1")
	b := tr.Create("node_1")
	c := tr.Create("node_2")

	tr.CancelAllFor("node_1", "subtree removed")

	for _, opID := range []string{a, b} {
		if op, _ := tr.Get(opID); op.Status != OpCancelled {
			t.Errorf("op %s status = %s, want cancelled", opID, op.Status)
		}
	}
	if !tr.IsPending(c) {
		t.Error("operation on another node must be unaffected")
	}
}

func TestTrackerEviction(t *testing.T) {
	tr := NewTracker()
	tr.retention = 10 * time.Millisecond

	done := tr.Create("node_1")
	tr.Complete(done, true)
	open := tr.Create("node_2")

	time.Sleep(20 * time.Millisecond)
	tr.Create("node_3") // triggers the sweep

	if _, ok := tr.Get(done); ok {
		t.Error("terminal record should have been evicted")
	}
	if !tr.IsPending(open) {
		t.Error("pending record must never be evicted")
	}
}
