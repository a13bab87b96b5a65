// Package server exposes the conversation tree over HTTP and pushes change
// events to websocket subscribers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/loomchat/loom/internal/metrics"
	"github.com/loomchat/loom/internal/session"
	"github.com/loomchat/loom/internal/tree"
)

// Server serves the HTTP API for one session.
type Server struct {
	echo    *echo.Echo
	session *session.Session
	stats   *metrics.Collector
	logger  *slog.Logger
	hub     *hub
	addr    string
}

// Option configures a Server.
type Option func(*Server)

// WithStats attaches a metrics collector served at /api/v1/stats.
func WithStats(c *metrics.Collector) Option {
	return func(s *Server) { s.stats = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates the HTTP server and wires the websocket hub to tree events.
func New(sess *session.Session, addr string, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		session: sess,
		logger:  slog.Default(),
		addr:    addr,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hub = newHub(s.logger)
	sess.Tree().Subscribe(s.hub.publish)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		s.logger.Info("http request",
			"method", c.Request().Method,
			"uri", c.Request().RequestURI,
			"status", c.Response().Status,
			"duration", time.Since(start),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ws", s.handleWS)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/tree", s.handleTree)
	v1.POST("/nodes", s.handleAddNode)
	v1.GET("/nodes/:id", s.handleGetNode)
	v1.DELETE("/nodes/:id", s.handleDeleteNode)
	v1.GET("/nodes/:id/path", s.handlePath)
	v1.GET("/nodes/:id/context", s.handleContext)
	v1.POST("/nodes/:id/generate", s.handleGenerate)
	v1.GET("/export", s.handleExport)
	v1.POST("/import", s.handleImport)
	v1.POST("/import/transcript", s.handleImportTranscript)
	v1.GET("/stats", s.handleStats)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.addr)
	return s.echo.Start(s.addr)
}

// Shutdown gracefully stops the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	s.hub.close()
	return s.echo.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
}

type addNodeRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parentId"`
	Role     string `json:"role"`
}

type nodeCreatedResponse struct {
	ID string `json:"id"`
}

type treeResponse struct {
	Nodes     []tree.Node `json:"nodes"`
	Links     []tree.Link `json:"links"`
	RootID    string      `json:"rootId"`
	CurrentID string      `json:"currentId"`
}

type pathResponse struct {
	Path []string `json:"path"`
}

type generateResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statsResponse struct {
	Nodes      int              `json:"nodes"`
	Operations []tree.Operation `json:"operations"`
	Metrics    metrics.Snapshot `json:"metrics"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleTree(c echo.Context) error {
	t := s.session.Tree()
	nodes, links := t.TreeData()
	return c.JSON(http.StatusOK, treeResponse{
		Nodes:     nodes,
		Links:     links,
		RootID:    t.RootID(),
		CurrentID: t.CurrentID(),
	})
}

func (s *Server) handleAddNode(c echo.Context) error {
	var req addNodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	id, err := s.session.AddNode(c.Request().Context(), req.Content, req.ParentID, tree.ParseRole(req.Role))
	if errors.Is(err, tree.ErrNodeNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("parent %s not found", req.ParentID))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, nodeCreatedResponse{ID: id})
}

func (s *Server) handleGetNode(c echo.Context) error {
	node, ok := s.session.Tree().Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "node not found")
	}
	return c.JSON(http.StatusOK, node)
}

func (s *Server) handleDeleteNode(c echo.Context) error {
	if !s.session.Tree().DeleteNode(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "node not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePath(c echo.Context) error {
	path, err := s.session.Tree().PathTo(c.Param("id"))
	if errors.Is(err, tree.ErrNodeNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "node not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pathResponse{Path: path})
}

func (s *Server) handleContext(c echo.Context) error {
	maxResults := tree.DefaultMaxContext
	if raw := c.QueryParam("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "max must be a positive integer")
		}
		maxResults = n
	}

	entries, err := s.session.Tree().RelevantContext(c.Param("id"), maxResults)
	if errors.Is(err, tree.ErrNodeNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "node not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

// handleGenerate runs the reply protocol. Provider failures surface as 502
// with an "AI error" message; every other tree operation stays available.
func (s *Server) handleGenerate(c echo.Context) error {
	reply, err := s.session.Generate(c.Request().Context(), c.Param("id"))
	if errors.Is(err, tree.ErrNodeNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "node not found")
	}
	if err != nil {
		s.logger.Error("generation failed", "node_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "AI error: " + err.Error()})
	}
	return c.JSON(http.StatusOK, generateResponse{Reply: reply})
}

func (s *Server) handleExport(c echo.Context) error {
	return c.JSON(http.StatusOK, s.session.Tree().Export())
}

func (s *Server) handleImport(c echo.Context) error {
	var snap tree.Snapshot
	if err := c.Bind(&snap); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid snapshot body")
	}
	if err := s.session.ImportSnapshot(c.Request().Context(), snap, nil); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": len(snap.Nodes)})
}

func (s *Server) handleImportTranscript(c echo.Context) error {
	var transcript tree.Transcript
	if err := c.Bind(&transcript); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid transcript body")
	}
	if err := s.session.ImportTranscript(c.Request().Context(), transcript, nil); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": len(transcript.Messages)})
}

func (s *Server) handleStats(c echo.Context) error {
	resp := statsResponse{
		Nodes:      s.session.Tree().Len(),
		Operations: s.session.Tree().Ops().List(),
	}
	if s.stats != nil {
		resp.Metrics = s.stats.Snapshot()
	}
	return c.JSON(http.StatusOK, resp)
}
