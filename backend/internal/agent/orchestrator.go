package agent

import (
	"context"

	"go.uber.org/zap"

	"branchboard/backend/internal/adapter"
	"branchboard/backend/internal/chain"
	"branchboard/backend/internal/constants"
	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
	"branchboard/backend/pkg/logger"
)

// Store is the storage the orchestrator writes through
type Store interface {
	chain.Store
	GetBoard(ctx context.Context, boardID string) (*state.Board, error)
	CreateNode(ctx context.Context, node state.Node) error
	DeleteNode(ctx context.Context, nodeID string) error
	CreateEdge(ctx context.Context, edge state.Edge) error
}

// Generator produces completions
type Generator interface {
	Generate(ctx context.Context, model, systemPrompt, userMsg string) (*adapter.Response, error)
	// GetModel is the model used for nodes that name none
	GetModel() string
}

// Orchestrator runs LLM generation for nodes and creates branches
type Orchestrator struct {
	store  Store
	chain  *chain.Builder
	llm    Generator
	newID  func(prefix string) string
	logger *zap.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(store Store, llm Generator) *Orchestrator {
	return &Orchestrator{
		store:  store,
		chain:  chain.NewBuilder(store),
		llm:    llm,
		newID:  NewShortID,
		logger: logger.Get(),
	}
}

// Generation is the outcome of one LLM call for a node
type Generation struct {
	Node  state.Node    `json:"node"`
	Model string        `json:"model"`
	Usage adapter.Usage `json:"usage"`
}

// GenerateForNode refreshes the node's context from its parents, asks the
// LLM and stores the exchange on the node. An empty prompt reuses the
// node's stored prompt.
func (o *Orchestrator) GenerateForNode(ctx context.Context, boardID, nodeID, prompt string) (*Generation, error) {
	node, err := o.nodeOnBoard(ctx, boardID, nodeID)
	if err != nil {
		return nil, err
	}

	if prompt == "" {
		prompt = node.Prompt
	}
	if prompt == "" {
		return nil, apperrors.NewValidation("prompt", "cannot be empty")
	}

	// best effort: a failed refresh falls back to whatever is stored
	chainContext := o.chain.Refresh(ctx, nodeID, boardID)
	if chainContext == "" {
		chainContext = node.Context
	} else {
		node.Context = chainContext
	}

	model := o.modelFor(*node)
	o.logger.Debug("Generating node response",
		zap.String("board_id", boardID),
		zap.String("node_id", nodeID),
		zap.String("model", model),
		zap.Int("context_length", len(chainContext)),
	)

	resp, err := o.llm.Generate(ctx, model, systemPrompt, buildNodePrompt(*node, chainContext, prompt))
	if err != nil {
		o.logger.Warn("Generation failed",
			zap.String("board_id", boardID),
			zap.String("node_id", nodeID),
			zap.Error(err),
		)
		return nil, err
	}

	role := constants.RoleAssistant
	upd := state.NodeUpdate{Prompt: &prompt, Response: &resp.Content, Role: &role}
	if err := o.store.UpdateNode(ctx, boardID, nodeID, upd); err != nil {
		return nil, err
	}
	upd.Apply(node)

	return &Generation{Node: *node, Model: resp.Model, Usage: resp.Usage}, nil
}

// RefreshContext recomputes a node's stored context. With lineage set the
// whole ancestry is refreshed root first.
func (o *Orchestrator) RefreshContext(ctx context.Context, boardID, nodeID string, lineage bool) (string, error) {
	if _, err := o.nodeOnBoard(ctx, boardID, nodeID); err != nil {
		return "", err
	}
	if lineage {
		return o.chain.RefreshLineage(ctx, nodeID, boardID), nil
	}
	return o.chain.Refresh(ctx, nodeID, boardID), nil
}

// modelFor picks the node's own model, falling back to the generator default
func (o *Orchestrator) modelFor(node state.Node) string {
	if node.Model != "" {
		return node.Model
	}
	return o.llm.GetModel()
}

// nodeOnBoard loads a node and checks it belongs to boardID
func (o *Orchestrator) nodeOnBoard(ctx context.Context, boardID, nodeID string) (*state.Node, error) {
	node, err := o.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.BoardID != boardID {
		return nil, apperrors.NewNotFound("node", nodeID)
	}
	return node, nil
}
