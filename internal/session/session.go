// Package session ties the conversational tree to the completion provider:
// the reply-generation protocol, best-effort summary enrichment, and batch
// imports.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loomchat/loom/internal/llm"
	"github.com/loomchat/loom/internal/metrics"
	"github.com/loomchat/loom/internal/tree"
)

// Session owns one conversational tree and its collaborators.
type Session struct {
	tree      *tree.Tree
	completer llm.Completer
	embedder  llm.Embedder
	stats     *metrics.Collector
	logger    *slog.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu             sync.Mutex
	summaryCancels map[string]context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) { s.stats = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a session around an existing tree. The embedder is used for
// batch imports; the completer for replies and summaries. Background summary
// tasks are cancelled automatically when their node is deleted.
func New(t *tree.Tree, completer llm.Completer, embedder llm.Embedder, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		tree:           t,
		completer:      completer,
		embedder:       embedder,
		logger:         slog.Default(),
		baseCtx:        ctx,
		cancelAll:      cancel,
		summaryCancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	t.Subscribe(func(ev tree.Event) {
		if ev.Type == tree.EventNodeDeleted {
			s.cancelSummary(ev.NodeID)
		}
	})

	return s
}

// Tree returns the underlying tree.
func (s *Session) Tree() *tree.Tree {
	return s.tree
}

// Close cancels all background tasks and waits for them to finish.
func (s *Session) Close() {
	s.cancelAll()
	s.wg.Wait()
}

// AddNode creates a node and kicks off summary enrichment in the
// background. Enrichment failures are logged, never surfaced.
func (s *Session) AddNode(ctx context.Context, content, parentID string, role tree.Role) (string, error) {
	id, err := s.tree.AddNode(ctx, content, parentID, role)
	if err != nil {
		return "", err
	}

	s.enrich(id, content)
	return id, nil
}

// Generate produces an assistant reply for the target node. The target id
// is captured here, at call time: the user may navigate elsewhere while the
// request is in flight, and the reply must still attach where it was asked
// for. Returns "" without error when there is nothing to do (duplicate
// reply, inert note target, or no usable reply). Provider failure is the
// one error allowed to propagate, since the user is actively waiting on it.
func (s *Session) Generate(ctx context.Context, targetID string) (string, error) {
	node, ok := s.tree.Get(targetID)
	if !ok {
		return "", fmt.Errorf("generate for %s: %w", targetID, tree.ErrNodeNotFound)
	}
	if node.Role == tree.RoleNote {
		return "", nil
	}
	if s.tree.HasAssistantChild(targetID) {
		s.logger.Debug("duplicate reply request short-circuited", "node_id", targetID)
		return "", nil
	}

	history, err := s.buildHistory(targetID)
	if err != nil {
		return "", err
	}
	systemPrompt := s.buildSystemPrompt(targetID)

	opID := s.tree.Ops().Create(targetID)

	start := time.Now()
	reply, err := s.completer.Complete(ctx, systemPrompt, history)
	if err != nil {
		s.tree.Ops().Complete(opID, false)
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if s.stats != nil {
		s.stats.RecordCompletion(time.Since(start), estimateTokens(systemPrompt, history), int64(len(reply)/4))
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		// "No usable reply" is a valid outcome, not a failure.
		s.tree.Ops().Complete(opID, true)
		return "", nil
	}

	attachTo := targetID
	if !s.tree.Exists(targetID) {
		// The target was deleted during the round-trip; attach to a
		// fallback parent rather than dropping the reply.
		attachTo = s.tree.RootID()
		if attachTo == "" {
			attachTo = s.tree.CurrentID()
		}
		s.logger.Warn("generation target deleted mid-flight, using fallback parent",
			"target", targetID, "fallback", attachTo, "op_id", opID)
	} else if !s.tree.Ops().IsPending(opID) {
		// Cancelled while in flight with the target still alive: the
		// resolution is simply ignored.
		s.logger.Debug("stale completion ignored", "op_id", opID, "target", targetID)
		return "", nil
	}

	replyID, err := s.AddNode(ctx, reply, attachTo, tree.RoleAssistant)
	if err != nil {
		s.tree.Ops().Complete(opID, false)
		return "", fmt.Errorf("attach reply: %w", err)
	}

	s.tree.Ops().Complete(opID, true)
	s.logger.Info("reply generated", "target", attachTo, "reply_id", replyID, "op_id", opID)
	return reply, nil
}

// buildHistory converts the root-to-target path into an ordered message
// history. Notes travel as user turns so their content stays visible.
func (s *Session) buildHistory(targetID string) ([]llm.Message, error) {
	nodes, err := s.tree.PathNodes(targetID)
	if err != nil {
		return nil, err
	}

	msgs := make([]llm.Message, len(nodes))
	for i, n := range nodes {
		role := "user"
		if n.Role == tree.RoleAssistant {
			role = "assistant"
		}
		msgs[i] = llm.Message{Role: role, Content: n.Content}
	}
	return msgs, nil
}

// contextSnippetLen bounds how much of each context node goes into the
// system prompt.
const contextSnippetLen = 200

// buildSystemPrompt assembles the system prompt from the ranked relevant
// context of the target node.
func (s *Session) buildSystemPrompt(targetID string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant in a branching conversation. ")
	b.WriteString("Continue the current thread naturally and concisely.")

	entries, err := s.tree.RelevantContext(targetID, tree.DefaultMaxContext)
	if err != nil || len(entries) == 0 {
		return b.String()
	}

	b.WriteString("\n\nRelevant context from elsewhere in the conversation:\n")
	for _, e := range entries {
		snippet := e.Node.Content
		if e.Node.Summary != "" {
			snippet = e.Node.Summary
		}
		if len(snippet) > contextSnippetLen {
			snippet = snippet[:contextSnippetLen] + "..."
		}
		fmt.Fprintf(&b, "- (%s) %s\n", e.Reason, snippet)
	}
	return b.String()
}

// estimateTokens roughly estimates prompt tokens at four characters each.
func estimateTokens(systemPrompt string, msgs []llm.Message) int64 {
	total := len(systemPrompt)
	for _, m := range msgs {
		total += len(m.Content)
	}
	return int64(total / 4)
}
