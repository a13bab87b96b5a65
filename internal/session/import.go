package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loomchat/loom/internal/metrics"
	"github.com/loomchat/loom/internal/tree"
)

const (
	// embedConcurrency bounds parallel embedding requests during import.
	embedConcurrency = 4
	// embedBatchSize is how many node contents go into one provider call.
	embedBatchSize = 16
)

// ProgressFunc reports import progress as nodes are embedded.
type ProgressFunc func(done, total int)

// ImportSnapshot validates a snapshot, embeds every node in concurrent
// batches and loads the result into the tree. Nothing is mutated until the
// whole batch has been validated and embedded. onProgress may be nil.
func (s *Session) ImportSnapshot(ctx context.Context, snap tree.Snapshot, onProgress ProgressFunc) error {
	if err := tree.ValidateSnapshot(snap); err != nil {
		return err
	}

	total := len(snap.Nodes)
	embeddings := make(map[string][]float32, total)

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < total; start += embedBatchSize {
		chunk := snap.Nodes[start:min(start+embedBatchSize, total)]
		g.Go(func() error {
			texts := make([]string, len(chunk))
			for i, n := range chunk {
				texts[i] = n.Content
			}

			begin := time.Now()
			vecs, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch starting at %s: %w", chunk[0].ID, err)
			}
			if s.stats != nil {
				s.stats.RecordTiming(metrics.OpEmbedding, time.Since(begin))
			}

			mu.Lock()
			for i, n := range chunk {
				embeddings[n.ID] = vecs[i]
			}
			done += len(chunk)
			d := done
			mu.Unlock()
			if onProgress != nil {
				onProgress(d, total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.tree.Import(snap, embeddings); err != nil {
		return err
	}
	s.logger.Info("snapshot imported", "nodes", total)
	return nil
}

// ImportTranscript converts a linear transcript into a snapshot and imports
// it through the same path.
func (s *Session) ImportTranscript(ctx context.Context, tr tree.Transcript, onProgress ProgressFunc) error {
	snap, err := tree.TranscriptToSnapshot(tr)
	if err != nil {
		return err
	}
	return s.ImportSnapshot(ctx, snap, onProgress)
}
