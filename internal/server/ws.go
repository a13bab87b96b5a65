package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/loomchat/loom/internal/tree"
)

const (
	clientBuffer = 16
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// hub fans tree events out to websocket clients. A client that cannot keep
// up has its buffer overflow and gets disconnected rather than stalling the
// tree.
type hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[chan tree.Event]struct{}
	closed  bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[chan tree.Event]struct{}),
	}
}

func (h *hub) register() chan tree.Event {
	ch := make(chan tree.Event, clientBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(ch chan tree.Event) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// publish is called from tree mutation paths and must never block.
func (h *hub) publish(ev tree.Event) {
	h.mu.Lock()
	var slow []chan tree.Event
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			slow = append(slow, ch)
		}
	}
	for _, ch := range slow {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()

	if len(slow) > 0 {
		h.logger.Warn("dropped slow websocket clients", "count", len(slow))
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		close(ch)
	}
	h.clients = make(map[chan tree.Event]struct{})
}

// handleWS upgrades the connection and streams tree events until the client
// disconnects.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ch := s.hub.register()
	s.logger.Debug("websocket client connected", "remote", conn.RemoteAddr())

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice disconnects and answer control frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.hub.unregister(ch)
		conn.Close()
		s.logger.Debug("websocket client disconnected", "remote", conn.RemoteAddr())
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		}
	}
}
