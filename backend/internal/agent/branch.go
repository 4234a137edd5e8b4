package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"branchboard/backend/internal/constants"
	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
)

// Position places a new node on the canvas
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HighlightRequest branches a new node off a text selection in SourceNodeID
type HighlightRequest struct {
	SourceNodeID    string    `json:"source_node_id"`
	HighlightedText string    `json:"highlighted_text"`
	UserQuestion    string    `json:"user_question"`
	Position        *Position `json:"position,omitempty"`
	AutoGenerate    bool      `json:"auto_generate"`
}

// FullRequest branches a new node off the whole of SourceNodeID
type FullRequest struct {
	SourceNodeID string    `json:"source_node_id"`
	Position     *Position `json:"position,omitempty"`
	Title        string    `json:"title,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
	Role         string    `json:"role,omitempty"`
	Model        string    `json:"model,omitempty"`
}

// Branch is the node and edge a branch operation created
type Branch struct {
	Node      state.Node `json:"node"`
	Edge      state.Edge `json:"edge"`
	Generated bool       `json:"generated"`
}

// BranchHighlight creates a child of the source node whose context quotes
// the highlighted text. With AutoGenerate the LLM answers straight away; a
// provider failure there is logged and the branch is returned unanswered.
func (o *Orchestrator) BranchHighlight(ctx context.Context, boardID string, req HighlightRequest) (*Branch, error) {
	if req.SourceNodeID == "" {
		return nil, apperrors.NewValidation("source_node_id", "cannot be empty")
	}
	if strings.TrimSpace(req.HighlightedText) == "" {
		return nil, apperrors.NewValidation("highlighted_text", "cannot be empty")
	}

	source, err := o.branchSource(ctx, boardID, req.SourceNodeID)
	if err != nil {
		return nil, err
	}

	highlightContext, err := o.chain.ComposeWithHighlight(ctx, source.ID, req.HighlightedText, boardID)
	if err != nil {
		return nil, err
	}

	x, y := source.X+constants.HighlightOffsetX, source.Y+constants.HighlightOffsetY
	if req.Position != nil {
		x, y = req.Position.X, req.Position.Y
	}

	width := source.Width
	if width == 0 {
		width = constants.HighlightWidth
	}
	model := source.Model
	if model == "" {
		model = constants.DefaultModel
	}

	node := state.Node{
		ID:      o.newID(constants.NodeIDPrefix),
		BoardID: boardID,
		Title:   constants.HighlightBranchTitle,
		Prompt:  req.UserQuestion,
		Context: highlightContext,
		Role:    constants.RoleUser,
		Type:    constants.NodeTypeCustom,
		Model:   model,
		X:       x,
		Y:       y,
		Width:   width,
		Height:  source.Height,
	}

	branch, err := o.createBranch(ctx, "branch highlight", source.ID, node)
	if err != nil {
		return nil, err
	}

	if req.AutoGenerate && req.UserQuestion != "" {
		o.answerHighlight(ctx, branch, req)
	}
	return branch, nil
}

// BranchFull creates a child of the source node and builds its context from
// all of its parents
func (o *Orchestrator) BranchFull(ctx context.Context, boardID string, req FullRequest) (*Branch, error) {
	if req.SourceNodeID == "" {
		return nil, apperrors.NewValidation("source_node_id", "cannot be empty")
	}

	source, err := o.branchSource(ctx, boardID, req.SourceNodeID)
	if err != nil {
		return nil, err
	}

	x, y := source.X+constants.FullOffsetX, source.Y+constants.FullOffsetY
	if req.Position != nil {
		x, y = req.Position.X, req.Position.Y
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("Full branch from %s", source.ID)
	}
	role := req.Role
	if role == "" {
		role = constants.RoleUser
	}

	node := state.Node{
		ID:      o.newID(constants.NodeIDPrefix),
		BoardID: boardID,
		Title:   title,
		Prompt:  req.Prompt,
		Role:    role,
		Type:    constants.NodeTypeCustom,
		Model:   req.Model,
		X:       x,
		Y:       y,
		Width:   constants.FullBranchWidth,
		Height:  constants.FullBranchHeight,
	}

	branch, err := o.createBranch(ctx, "branch full", source.ID, node)
	if err != nil {
		return nil, err
	}

	branch.Node.Context = o.chain.Refresh(ctx, branch.Node.ID, boardID)
	return branch, nil
}

// branchSource checks the board exists and returns the source node on it
func (o *Orchestrator) branchSource(ctx context.Context, boardID, sourceID string) (*state.Node, error) {
	if _, err := o.store.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	return o.nodeOnBoard(ctx, boardID, sourceID)
}

// createBranch writes the node and then the edge from sourceID, deleting the
// node again if the edge cannot be written
func (o *Orchestrator) createBranch(ctx context.Context, name, sourceID string, node state.Node) (*Branch, error) {
	edge := state.Edge{
		ID:           o.newID(constants.EdgeIDPrefix),
		BoardID:      node.BoardID,
		SourceNodeID: sourceID,
		TargetNodeID: node.ID,
		EdgeType:     constants.EdgeTypeDefault,
	}

	s := &saga{name: name, logger: o.logger}
	s.add(sagaStep{
		name:    "create node",
		execute: func(ctx context.Context) error { return o.store.CreateNode(ctx, node) },
		compensate: func(ctx context.Context) error {
			return o.store.DeleteNode(ctx, node.ID)
		},
	})
	s.add(sagaStep{
		name:    "create edge",
		execute: func(ctx context.Context) error { return o.store.CreateEdge(ctx, edge) },
	})

	if err := s.run(ctx); err != nil {
		return nil, err
	}

	o.logger.Info("Branch created",
		zap.String("board_id", node.BoardID),
		zap.String("source_node_id", sourceID),
		zap.String("node_id", node.ID),
		zap.String("edge_id", edge.ID),
	)
	return &Branch{Node: node, Edge: edge}, nil
}

func (o *Orchestrator) answerHighlight(ctx context.Context, branch *Branch, req HighlightRequest) {
	prompt := buildHighlightPrompt(req.HighlightedText, req.UserQuestion)
	resp, err := o.llm.Generate(ctx, o.modelFor(branch.Node), systemPrompt, buildNodePrompt(branch.Node, branch.Node.Context, prompt))
	if err != nil {
		o.logger.Warn("Auto-generation for highlight branch failed",
			zap.String("node_id", branch.Node.ID),
			zap.Error(err),
		)
		return
	}

	role := constants.RoleAssistant
	upd := state.NodeUpdate{Response: &resp.Content, Role: &role}
	if err := o.store.UpdateNode(ctx, branch.Node.BoardID, branch.Node.ID, upd); err != nil {
		o.logger.Warn("Failed to store highlight branch response",
			zap.String("node_id", branch.Node.ID),
			zap.Error(err),
		)
		return
	}
	upd.Apply(&branch.Node)
	branch.Generated = true
}

// NewShortID returns prefix followed by 8 hex characters, the id format
// used for nodes and edges
func NewShortID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
