package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/internal/client"
	"github.com/loomchat/loom/internal/llm"
	"github.com/loomchat/loom/internal/session"
	"github.com/loomchat/loom/internal/tree"
)

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 2 }

func newTestServer(t *testing.T, completer llm.Completer) *Server {
	t.Helper()
	if completer == nil {
		completer = &fakeCompleter{reply: "Hi there"}
	}
	emb := fakeEmbedder{}
	sess := session.New(tree.New(emb), completer, emb)
	t.Cleanup(sess.Close)
	return New(sess, ":0")
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestAddAndFetchNode(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "Hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created nodeCreatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "node_0", created.ID)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/nodes/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var node tree.Node
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	assert.Equal(t, "Hello", node.Content)
	assert.Equal(t, tree.RoleUser, node.Role)
}

func TestAddNodeValidation(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "x", ParentID: "node_42"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteNode(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "Hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/nodes/node_0", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/nodes/node_0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTreeProjection(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "root"})
	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "child", ParentID: "node_0"})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/tree", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp treeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Nodes, 2)
	require.Len(t, resp.Links, 1)
	assert.Equal(t, "node_0", resp.Links[0].Source)
	assert.Equal(t, "node_0", resp.RootID)
	assert.Equal(t, "node_1", resp.CurrentID)
}

func TestGenerate(t *testing.T) {
	s := newTestServer(t, &fakeCompleter{reply: "Hi there"})
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "Hello"})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/nodes/node_0/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hi there", resp.Reply)
}

func TestGenerateProviderFailure(t *testing.T) {
	s := newTestServer(t, &fakeCompleter{err: errors.New("connection refused")})
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "a much longer opening message"})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/nodes/node_0/generate", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Error, "AI error: "), resp.Error)

	// The tree must stay fully usable after a provider failure.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/export", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateUnknownNode(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/nodes/node_9/generate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportImportOverHTTP(t *testing.T) {
	src := newTestServer(t, nil)
	h := src.Handler()
	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "root"})
	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "child", ParentID: "node_0"})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap tree.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))

	dst := newTestServer(t, nil)
	rec = doJSON(t, dst.Handler(), http.MethodPost, "/api/v1/import", snap)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, dst.session.Tree().Len())
}

func TestImportRejectsBadSnapshot(t *testing.T) {
	s := newTestServer(t, nil)
	snap := tree.Snapshot{Version: 99}
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/import", snap)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContextEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()
	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "root"})
	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "child", ParentID: "node_0"})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/nodes/node_1/context", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []tree.ContextEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, tree.ProximityClose, entries[0].Proximity)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/nodes/node_1/context?max=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()
	doJSON(t, h, http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "root"})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Nodes)
}

func TestWebsocketReceivesEvents(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	doJSON(t, s.Handler(), http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "Hello"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev tree.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, tree.EventNodeAdded, ev.Type)
	assert.Equal(t, "node_0", ev.NodeID)
}

func TestClientWatchStreamsEvents(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events := make(chan tree.Event, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- client.New(ts.URL).Watch(ctx, func(ev tree.Event) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	// Give the watcher a moment to connect before mutating.
	require.Eventually(t, func() bool {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		return len(s.hub.clients) == 1
	}, time.Second, 5*time.Millisecond)

	doJSON(t, s.Handler(), http.MethodPost, "/api/v1/nodes", addNodeRequest{Content: "Hello"})

	select {
	case ev := <-events:
		assert.Equal(t, tree.EventNodeAdded, ev.Type)
		assert.Equal(t, "node_0", ev.NodeID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	require.ErrorIs(t, <-watchErr, context.Canceled)
}
