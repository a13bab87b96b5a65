// Package tree implements the in-memory conversational tree: an arena of
// message nodes with parent/child links, path and relevance queries, and a
// tracker for in-flight generation operations.
package tree

import (
	"math"
	"strings"
	"time"
)

// Role classifies a node. It is set once at creation.
type Role string

const (
	// RoleUser is a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant is a generated reply.
	RoleAssistant Role = "assistant"
	// RoleNote is an inert annotation: it never triggers generation.
	RoleNote Role = "note"
)

// ParseRole maps a wire string to a Role, defaulting to RoleUser.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(s)) {
	case RoleAssistant:
		return RoleAssistant
	case RoleNote:
		return RoleNote
	default:
		return RoleUser
	}
}

// Node is one message in the conversation tree. Children hold ids rather
// than pointers, so the graph has no object cycles; parent links form a DAG
// toward the root.
type Node struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	ParentID   string    `json:"parentId,omitempty"`
	Children   []string  `json:"children"`
	CreatedAt  time.Time `json:"timestamp"`
	Embedding  []float32 `json:"-"`
	Importance float64   `json:"importance"`
	Role       Role      `json:"role"`
	Summary    string    `json:"summary,omitempty"`
	Keywords   []string  `json:"keywords,omitempty"`

	// SummaryPending guards duplicate concurrent summary requests.
	SummaryPending bool `json:"-"`

	// seq is the global insertion order, used for stable tie-breaking.
	seq int
}

// emphasisKeywords mark content the user has flagged as load-bearing.
var emphasisKeywords = []string{
	"important", "critical", "key", "must", "always", "never", "remember",
}

// computeImportance derives a scalar in [0,1] from content length and
// emphasis keywords.
func computeImportance(content string) float64 {
	score := math.Min(float64(len(content))/500, 1) * 0.5

	lower := strings.ToLower(content)
	for _, kw := range emphasisKeywords {
		if strings.Contains(lower, kw) {
			score += 0.1
		}
	}
	if strings.Contains(content, "!") {
		score += 0.05
	}

	return math.Min(score, 1)
}

// clone returns a deep-enough copy for handing to readers outside the lock.
func (n *Node) clone() Node {
	c := *n
	c.Children = append([]string(nil), n.Children...)
	c.Keywords = append([]string(nil), n.Keywords...)
	c.Embedding = append([]float32(nil), n.Embedding...)
	return c
}
