package metrics

import (
	"testing"
	"time"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpEmbedding, 10*time.Millisecond)
	c.RecordTiming(OpEmbedding, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.Embedding == nil {
		t.Fatal("expected embedding snapshot")
	}
	if snap.Embedding.Count != 2 {
		t.Errorf("Count = %d, want 2", snap.Embedding.Count)
	}
	if snap.Embedding.MinTimeMs != 10 || snap.Embedding.MaxTimeMs != 30 {
		t.Errorf("min/max = %d/%d, want 10/30", snap.Embedding.MinTimeMs, snap.Embedding.MaxTimeMs)
	}
	if snap.Embedding.AvgTimeMs != 20 {
		t.Errorf("AvgTimeMs = %v, want 20", snap.Embedding.AvgTimeMs)
	}

	// Operations never recorded stay nil.
	if snap.Summary != nil {
		t.Error("expected nil summary snapshot")
	}
}

func TestCollectorCompletionTokens(t *testing.T) {
	c := NewCollector()

	c.RecordCompletion(100*time.Millisecond, 200, 50)
	c.RecordCompletion(200*time.Millisecond, 300, 150)

	snap := c.Snapshot()
	if snap.Completion == nil {
		t.Fatal("expected completion snapshot")
	}
	if *snap.Completion.InputTokens != 500 {
		t.Errorf("InputTokens = %d, want 500", *snap.Completion.InputTokens)
	}
	if *snap.Completion.OutputTokens != 200 {
		t.Errorf("OutputTokens = %d, want 200", *snap.Completion.OutputTokens)
	}
	if *snap.Completion.AvgOutputTokens != 100 {
		t.Errorf("AvgOutputTokens = %v, want 100", *snap.Completion.AvgOutputTokens)
	}
}
