package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"branchboard/backend/internal/agent"
	"branchboard/backend/internal/collab"
	"branchboard/backend/internal/graph"
	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
)

const healthCheckTimeout = 2 * time.Second

// pinger reports whether a backing service is reachable
type pinger interface {
	Ping(ctx context.Context) error
}

// server holds the handlers' collaborators
type server struct {
	ctx     context.Context
	store   graph.Store
	hub     *collab.Hub
	orch    *agent.Orchestrator
	wsOpts  collab.WSOptions
	origins []string
	log     *zap.Logger

	// relay is nil when cross-instance fan-out is disabled
	relay pinger

	upgrader websocket.Upgrader
}

func newServer(ctx context.Context, store graph.Store, hub *collab.Hub, llm agent.Generator, wsOpts collab.WSOptions, origins []string, log *zap.Logger) *server {
	s := &server{
		ctx:     ctx,
		store:   store,
		hub:     hub,
		orch:    agent.NewOrchestrator(store, llm),
		wsOpts:  wsOpts,
		origins: origins,
		log:     log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	return s
}

func (s *server) router() *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(s.log))
	router.Use(gin.Recovery())
	router.Use(s.cors())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.hub.Metrics().Registry(), promhttp.HandlerOpts{})))

	router.GET("/ws/:board_id", s.handleWebsocket)

	api := router.Group("/api/boards")
	{
		api.POST("", s.handleCreateBoard)
		api.GET("/:board_id/presence", s.handlePresence)
		api.GET("/:board_id/graph", s.handleGraph)
		api.POST("/:board_id/nodes", s.handleCreateNode)
		api.GET("/:board_id/nodes", s.handleListNodes)
		api.PATCH("/:board_id/nodes/:node_id", s.handleUpdateNode)
		api.DELETE("/:board_id/nodes/:node_id", s.handleDeleteNode)
		api.POST("/:board_id/edges", s.handleCreateEdge)
		api.DELETE("/:board_id/edges/:edge_id", s.handleDeleteEdge)
		api.POST("/:board_id/nodes/:node_id/generate", s.handleGenerate)
		api.POST("/:board_id/nodes/:node_id/context/refresh", s.handleRefreshContext)
		api.POST("/:board_id/branches/highlight", s.handleBranchHighlight)
		api.POST("/:board_id/branches/full", s.handleBranchFull)
	}

	return router
}

func (s *server) handleHealth(c *gin.Context) {
	body := gin.H{"status": "ok", "rooms": len(s.hub.Rooms())}
	if s.relay == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()
	if err := s.relay.Ping(ctx); err != nil {
		s.log.Warn("Relay health check failed", zap.Error(err))
		body["status"] = "degraded"
		body["relay"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["relay"] = "ok"
	c.JSON(http.StatusOK, body)
}

func (s *server) handleWebsocket(c *gin.Context) {
	boardID := c.Param("board_id")

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		s.log.Warn("WebSocket upgrade failed", zap.String("board_id", boardID), zap.Error(err))
		return
	}

	var user *collab.UserInfo
	if name := c.Query("name"); name != "" {
		user = &collab.UserInfo{Name: name, Color: c.Query("color")}
	}

	conn := collab.NewWSConn(ws, s.wsOpts)
	session := collab.NewSession(s.hub, conn, boardID, user, s.store)
	if err := session.Serve(s.ctx, conn); err != nil && s.ctx.Err() == nil {
		s.log.Warn("WebSocket session ended with error",
			zap.String("board_id", boardID),
			zap.String("connection_id", conn.ID()),
			zap.Error(err),
		)
	}
}

func (s *server) handleCreateBoard(c *gin.Context) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	board := state.Board{ID: req.ID, Name: req.Name, CreatedAt: time.Now().UTC()}
	if err := s.store.CreateBoard(c.Request.Context(), board); err != nil {
		s.writeError(c, "Failed to create board", err)
		return
	}
	c.JSON(http.StatusCreated, board)
}

func (s *server) handlePresence(c *gin.Context) {
	boardID := c.Param("board_id")
	members := s.hub.Members(boardID)
	c.JSON(http.StatusOK, gin.H{
		"board_id":   boardID,
		"user_count": len(members),
		"members":    members,
	})
}

func (s *server) handleGraph(c *gin.Context) {
	ctx := c.Request.Context()
	boardID := c.Param("board_id")

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		s.writeError(c, "Failed to fetch board", err)
		return
	}
	nodes, err := s.store.ListNodes(ctx, boardID)
	if err != nil {
		s.writeError(c, "Failed to fetch nodes", err)
		return
	}
	edges, err := s.store.ListEdges(ctx, boardID)
	if err != nil {
		s.writeError(c, "Failed to fetch edges", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"board": board, "nodes": nodes, "edges": edges})
}

func (s *server) handleGenerate(c *gin.Context) {
	boardID, nodeID := c.Param("board_id"), c.Param("node_id")

	var req struct {
		Prompt string `json:"prompt"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	gen, err := s.orch.GenerateForNode(c.Request.Context(), boardID, nodeID, req.Prompt)
	if err != nil {
		s.writeError(c, "Failed to generate response", err)
		return
	}

	updates, _ := json.Marshal(map[string]interface{}{
		"prompt":   gen.Node.Prompt,
		"response": gen.Node.Response,
		"role":     gen.Node.Role,
		"context":  gen.Node.Context,
	})
	s.broadcast(c.Request.Context(), boardID, collab.NodeUpdated{NodeID: nodeID, Updates: updates})

	c.JSON(http.StatusOK, gen)
}

func (s *server) handleRefreshContext(c *gin.Context) {
	boardID, nodeID := c.Param("board_id"), c.Param("node_id")

	var req struct {
		Lineage bool `json:"lineage"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	chainContext, err := s.orch.RefreshContext(c.Request.Context(), boardID, nodeID, req.Lineage)
	if err != nil {
		s.writeError(c, "Failed to refresh context", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"node_id": nodeID, "context": chainContext})
}

func (s *server) handleBranchHighlight(c *gin.Context) {
	var req agent.HighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	branch, err := s.orch.BranchHighlight(c.Request.Context(), c.Param("board_id"), req)
	if err != nil {
		s.writeError(c, "Failed to create highlight branch", err)
		return
	}
	s.announceBranch(c.Request.Context(), branch)
	c.JSON(http.StatusCreated, branch)
}

func (s *server) handleBranchFull(c *gin.Context) {
	var req agent.FullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	branch, err := s.orch.BranchFull(c.Request.Context(), c.Param("board_id"), req)
	if err != nil {
		s.writeError(c, "Failed to create full branch", err)
		return
	}
	s.announceBranch(c.Request.Context(), branch)
	c.JSON(http.StatusCreated, branch)
}

// announceBranch tells the room about a branch created over HTTP
func (s *server) announceBranch(ctx context.Context, branch *agent.Branch) {
	nodeData, _ := json.Marshal(branch.Node)
	edgeData, _ := json.Marshal(branch.Edge)
	s.broadcast(ctx, branch.Node.BoardID, collab.NodeCreated{NodeData: nodeData})
	s.broadcast(ctx, branch.Node.BoardID, collab.EdgeCreated{EdgeData: edgeData})
}

// broadcast fans an HTTP-originated change out to every member of the room.
// The write already succeeded, so a failed fan-out is only logged.
func (s *server) broadcast(ctx context.Context, boardID string, ev collab.Event) {
	if err := s.hub.Broadcast(ctx, boardID, ev, ""); err != nil {
		s.log.Warn("Failed to broadcast change",
			zap.String("board_id", boardID),
			zap.String("type", ev.Type()),
			zap.Error(err),
		)
	}
}

func (s *server) writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeMalformedInput:
		status = http.StatusBadRequest
	case apperrors.ErrorTypeProvider:
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.log.Error(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg, "detail": err.Error()})
}

func (s *server) originAllowed(origin string) bool {
	for _, allowed := range s.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && s.originAllowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
			c.Writer.Header().Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
