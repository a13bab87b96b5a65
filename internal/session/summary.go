package session

import (
	"context"
	"strings"
	"time"

	"github.com/loomchat/loom/internal/llm"
	"github.com/loomchat/loom/internal/metrics"
)

const (
	shortContentWords = 5
	maxKeywords       = 10
	minKeywordLen     = 4
	fallbackWords     = 5
)

const summaryPrompt = "Condense the following message into its key concepts. " +
	"Reply with a short comma-separated list of phrases, nothing else."

// enrich schedules background summary enrichment for a node. Content under
// five words is its own summary and skips the provider round-trip entirely.
func (s *Session) enrich(id, content string) {
	words := strings.Fields(content)
	if len(words) < shortContentWords {
		s.tree.FinishSummary(id, content, fallbackKeywords(words))
		return
	}

	if !s.tree.BeginSummary(id) {
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.summaryCancels[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.summaryCancels, id)
			s.mu.Unlock()
		}()
		s.summarize(ctx, id, content)
	}()
}

// cancelSummary stops the in-flight enrichment for a deleted node.
func (s *Session) cancelSummary(id string) {
	s.mu.Lock()
	cancel, ok := s.summaryCancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Session) summarize(ctx context.Context, id, content string) {
	start := time.Now()
	raw, err := s.completer.Complete(ctx, summaryPrompt, []llm.Message{
		{Role: "user", Content: content},
	})
	if ctx.Err() != nil {
		// Node deleted or session closing; leave no trace.
		s.tree.AbortSummary(id)
		return
	}
	if s.stats != nil {
		s.stats.RecordTiming(metrics.OpSummary, time.Since(start))
	}

	keywords := parseFragments(raw, content)
	if err != nil || len(keywords) == 0 {
		if err != nil {
			s.logger.Debug("summary enrichment failed, using fallback", "node_id", id, "error", err)
		}
		keywords = fallbackKeywords(strings.Fields(content))
		s.tree.FinishSummary(id, strings.Join(keywords, " "), keywords)
		return
	}

	summary := strings.Join(keywords, ", ")
	// A summary longer than its source is no summary at all.
	if len(summary) > len(content) {
		summary = summary[:len(content)]
	}
	s.tree.FinishSummary(id, summary, keywords)
}

// parseFragments turns a provider condensation into deduplicated keyword
// fragments. Fragments that share no vocabulary with the source content are
// discarded as hallucinated.
func parseFragments(raw, content string) []string {
	// Split on separators first; whitespace inside a fragment is
	// normalized afterwards, so newlines still act as separators.
	split := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	for i, frag := range split {
		split[i] = strings.Join(strings.Fields(frag), " ")
	}

	vocab := make(map[string]struct{})
	for _, w := range strings.Fields(content) {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'()"))
		if len(w) >= minKeywordLen {
			vocab[w] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, frag := range split {
		frag = strings.TrimSpace(strings.Trim(strings.TrimSpace(frag), "-•*"))
		if frag == "" {
			continue
		}
		key := strings.ToLower(frag)
		if _, dup := seen[key]; dup {
			continue
		}
		if !sharesVocabulary(frag, vocab) {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, frag)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// sharesVocabulary reports whether any substantial word of the fragment
// appears in the source vocabulary.
func sharesVocabulary(frag string, vocab map[string]struct{}) bool {
	for _, w := range strings.Fields(frag) {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'()"))
		if len(w) < minKeywordLen {
			continue
		}
		if _, ok := vocab[w]; ok {
			return true
		}
	}
	return false
}

// fallbackKeywords picks the first few substantial words of the content.
func fallbackKeywords(words []string) []string {
	var out []string
	for _, w := range words {
		trimmed := strings.Trim(w, ".,!?;:\"'()")
		if len(trimmed) < minKeywordLen {
			continue
		}
		out = append(out, trimmed)
		if len(out) == fallbackWords {
			break
		}
	}
	if len(out) == 0 && len(words) > 0 {
		out = append(out, strings.Trim(words[0], ".,!?;:\"'()"))
	}
	return out
}
