package graph

import (
	"context"

	"branchboard/backend/internal/state"
)

// Store is the full set of board operations served by both backends
type Store interface {
	GetBoard(ctx context.Context, boardID string) (*state.Board, error)
	CreateBoard(ctx context.Context, board state.Board) error

	GetNode(ctx context.Context, nodeID string) (*state.Node, error)
	FindNodes(ctx context.Context, ids []string) ([]state.Node, error)
	ListNodes(ctx context.Context, boardID string) ([]state.Node, error)
	CreateNode(ctx context.Context, node state.Node) error
	UpdateNode(ctx context.Context, boardID, nodeID string, upd state.NodeUpdate) error
	DeleteNode(ctx context.Context, nodeID string) error

	FindParentEdges(ctx context.Context, boardID, targetNodeID string) ([]state.Edge, error)
	ListEdges(ctx context.Context, boardID string) ([]state.Edge, error)
	CreateEdge(ctx context.Context, edge state.Edge) error
	DeleteEdge(ctx context.Context, edgeID string) error
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
