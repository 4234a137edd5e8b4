package main

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"branchboard/backend/internal/agent"
	"branchboard/backend/internal/collab"
	"branchboard/backend/internal/constants"
	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
)

type createNodeRequest struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Prompt   string  `json:"prompt"`
	Response string  `json:"response"`
	Context  string  `json:"context"`
	Role     string  `json:"role"`
	Type     string  `json:"type"`
	Model    string  `json:"model"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	IsRoot   bool    `json:"is_root"`
}

type createEdgeRequest struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id" binding:"required"`
	TargetNodeID string `json:"target_node_id" binding:"required"`
	EdgeType     string `json:"edge_type"`
	Label        string `json:"label"`
}

func (s *server) handleCreateNode(c *gin.Context) {
	boardID := c.Param("board_id")

	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	node := state.Node{
		ID:       req.ID,
		BoardID:  boardID,
		Title:    req.Title,
		Prompt:   req.Prompt,
		Response: req.Response,
		Context:  req.Context,
		Role:     req.Role,
		Type:     req.Type,
		Model:    req.Model,
		X:        req.X,
		Y:        req.Y,
		Width:    req.Width,
		Height:   req.Height,
		IsRoot:   req.IsRoot,
	}
	if node.ID == "" {
		node.ID = agent.NewShortID(constants.NodeIDPrefix)
	}
	if node.Type == "" {
		node.Type = constants.NodeTypeCustom
	}

	ctx := c.Request.Context()
	if err := s.store.CreateNode(ctx, node); err != nil {
		s.writeError(c, "Failed to create node", err)
		return
	}

	// read back for the store-assigned timestamps
	created, err := s.store.GetNode(ctx, node.ID)
	if err != nil {
		s.writeError(c, "Failed to fetch node", err)
		return
	}

	nodeData, _ := json.Marshal(created)
	s.broadcast(ctx, boardID, collab.NodeCreated{NodeData: nodeData})
	c.JSON(http.StatusCreated, created)
}

func (s *server) handleListNodes(c *gin.Context) {
	ctx := c.Request.Context()
	boardID := c.Param("board_id")

	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		s.writeError(c, "Failed to fetch board", err)
		return
	}
	nodes, err := s.store.ListNodes(ctx, boardID)
	if err != nil {
		s.writeError(c, "Failed to fetch nodes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"board_id": boardID, "nodes": nodes})
}

func (s *server) handleUpdateNode(c *gin.Context) {
	boardID, nodeID := c.Param("board_id"), c.Param("node_id")

	var upd state.NodeUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if upd.IsEmpty() {
		s.writeError(c, "Nothing to update", apperrors.NewValidation("updates", "no known fields"))
		return
	}

	ctx := c.Request.Context()
	if err := s.store.UpdateNode(ctx, boardID, nodeID, upd); err != nil {
		s.writeError(c, "Failed to update node", err)
		return
	}
	node, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		s.writeError(c, "Failed to fetch node", err)
		return
	}

	updates, _ := json.Marshal(upd)
	s.broadcast(ctx, boardID, collab.NodeUpdated{NodeID: nodeID, Updates: updates})
	c.JSON(http.StatusOK, node)
}

func (s *server) handleDeleteNode(c *gin.Context) {
	ctx := c.Request.Context()
	boardID, nodeID := c.Param("board_id"), c.Param("node_id")

	node, err := s.store.GetNode(ctx, nodeID)
	if err == nil && node.BoardID != boardID {
		err = apperrors.NewNotFound("node", nodeID)
	}
	if err != nil {
		s.writeError(c, "Failed to delete node", err)
		return
	}

	if err := s.store.DeleteNode(ctx, nodeID); err != nil {
		s.writeError(c, "Failed to delete node", err)
		return
	}

	s.broadcast(ctx, boardID, collab.NodeDeleted{NodeID: nodeID})
	c.Status(http.StatusNoContent)
}

func (s *server) handleCreateEdge(c *gin.Context) {
	boardID := c.Param("board_id")

	var req createEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	edge := state.Edge{
		ID:           req.ID,
		BoardID:      boardID,
		SourceNodeID: req.SourceNodeID,
		TargetNodeID: req.TargetNodeID,
		EdgeType:     req.EdgeType,
		Label:        req.Label,
	}
	if edge.ID == "" {
		edge.ID = agent.NewShortID(constants.EdgeIDPrefix)
	}
	if edge.EdgeType == "" {
		edge.EdgeType = constants.EdgeTypeDefault
	}

	ctx := c.Request.Context()
	if err := s.store.CreateEdge(ctx, edge); err != nil {
		s.writeError(c, "Failed to create edge", err)
		return
	}

	edgeData, _ := json.Marshal(edge)
	s.broadcast(ctx, boardID, collab.EdgeCreated{EdgeData: edgeData})
	c.JSON(http.StatusCreated, edge)
}

func (s *server) handleDeleteEdge(c *gin.Context) {
	ctx := c.Request.Context()
	boardID, edgeID := c.Param("board_id"), c.Param("edge_id")

	// the store deletes by id alone, so check the edge is live on this board
	edges, err := s.store.ListEdges(ctx, boardID)
	if err != nil {
		s.writeError(c, "Failed to fetch edges", err)
		return
	}
	found := false
	for _, e := range edges {
		if e.ID == edgeID {
			found = true
			break
		}
	}
	if !found {
		s.writeError(c, "Failed to delete edge", apperrors.NewNotFound("edge", edgeID))
		return
	}

	if err := s.store.DeleteEdge(ctx, edgeID); err != nil {
		s.writeError(c, "Failed to delete edge", err)
		return
	}

	s.broadcast(ctx, boardID, collab.EdgeDeleted{EdgeID: edgeID})
	c.Status(http.StatusNoContent)
}
