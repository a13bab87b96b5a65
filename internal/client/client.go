// Package client provides an HTTP client for the loom server, used by the
// CLI commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loomchat/loom/internal/metrics"
	"github.com/loomchat/loom/internal/tree"
)

// Client talks to a running loom server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If baseURL is empty, uses the LOOM_SERVER_URL env
// var or defaults to localhost:8484. The timeout covers slow provider
// round-trips during generation; override with LOOM_CLIENT_TIMEOUT.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("LOOM_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("LOOM_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends one request and decodes the JSON response into result, which may
// be nil for endpoints with no interesting body.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			if eb.Error != "" {
				return fmt.Errorf("%s", eb.Error)
			}
			if eb.Message != "" {
				return fmt.Errorf("%s", eb.Message)
			}
		}
		return fmt.Errorf("server error: %s", resp.Status)
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// TreeView is the flattened tree as served by GET /api/v1/tree.
type TreeView struct {
	Nodes     []tree.Node `json:"nodes"`
	Links     []tree.Link `json:"links"`
	RootID    string      `json:"rootId"`
	CurrentID string      `json:"currentId"`
}

// Stats mirrors GET /api/v1/stats.
type Stats struct {
	Nodes      int              `json:"nodes"`
	Operations []tree.Operation `json:"operations"`
	Metrics    metrics.Snapshot `json:"metrics"`
}

// AddNode creates a node and returns its id.
func (c *Client) AddNode(ctx context.Context, content, parentID, role string) (string, error) {
	req := map[string]string{"content": content, "parentId": parentID, "role": role}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/nodes", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetNode fetches a single node.
func (c *Client) GetNode(ctx context.Context, id string) (*tree.Node, error) {
	var node tree.Node
	if err := c.do(ctx, http.MethodGet, "/api/v1/nodes/"+id, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// DeleteNode removes a node and its subtree.
func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/nodes/"+id, nil, nil)
}

// Tree fetches the full tree projection.
func (c *Client) Tree(ctx context.Context) (*TreeView, error) {
	var view TreeView
	if err := c.do(ctx, http.MethodGet, "/api/v1/tree", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Path returns the root-to-node id path.
func (c *Client) Path(ctx context.Context, id string) ([]string, error) {
	var resp struct {
		Path []string `json:"path"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/nodes/"+id+"/path", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Path, nil
}

// Context returns the ranked context selection for a node.
func (c *Client) Context(ctx context.Context, id string, maxResults int) ([]tree.ContextEntry, error) {
	path := "/api/v1/nodes/" + id + "/context"
	if maxResults > 0 {
		path = fmt.Sprintf("%s?max=%d", path, maxResults)
	}
	var entries []tree.ContextEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Generate requests an assistant reply for the node.
func (c *Client) Generate(ctx context.Context, id string) (string, error) {
	var resp struct {
		Reply string `json:"reply"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/nodes/"+id+"/generate", nil, &resp); err != nil {
		return "", err
	}
	return resp.Reply, nil
}

// Export downloads the full tree snapshot.
func (c *Client) Export(ctx context.Context) (*tree.Snapshot, error) {
	var snap tree.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/export", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Import uploads a snapshot.
func (c *Client) Import(ctx context.Context, snap tree.Snapshot) error {
	return c.do(ctx, http.MethodPost, "/api/v1/import", snap, nil)
}

// ImportTranscript uploads a linear transcript.
func (c *Client) ImportTranscript(ctx context.Context, transcript tree.Transcript) error {
	return c.do(ctx, http.MethodPost, "/api/v1/import/transcript", transcript, nil)
}

// Stats fetches server statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Watch subscribes to tree change events over websocket and invokes onEvent
// for each one until the context is cancelled or the connection drops.
func (c *Client) Watch(ctx context.Context, onEvent func(tree.Event)) error {
	wsURL := c.baseURL + "/ws"
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev tree.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		onEvent(ev)
	}
}
