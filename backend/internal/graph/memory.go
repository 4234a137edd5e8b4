package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
)

// MemoryStore keeps boards in process memory. It is used when no Neo4j is
// configured and as the storage fake in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	boards map[string]state.Board
	nodes  map[string]state.Node
	edges  map[string]state.Edge

	// insertion order, used as the tie breaker for equal timestamps
	seq     int64
	nodeSeq map[string]int64
	edgeSeq map[string]int64
	nowFunc func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		boards:  make(map[string]state.Board),
		nodes:   make(map[string]state.Node),
		edges:   make(map[string]state.Edge),
		nodeSeq: make(map[string]int64),
		edgeSeq: make(map[string]int64),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) GetBoard(ctx context.Context, boardID string) (*state.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	board, ok := m.boards[boardID]
	if !ok {
		return nil, apperrors.NewNotFound("board", boardID)
	}
	return &board, nil
}

func (m *MemoryStore) CreateBoard(ctx context.Context, board state.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.boards[board.ID]; ok {
		existing.Name = board.Name
		m.boards[board.ID] = existing
		return nil
	}
	if board.CreatedAt.IsZero() {
		board.CreatedAt = m.nowFunc()
	}
	m.boards[board.ID] = board
	return nil
}

func (m *MemoryStore) GetNode(ctx context.Context, nodeID string) (*state.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[nodeID]
	if !ok {
		return nil, apperrors.NewNotFound("node", nodeID)
	}
	return &node, nil
}

func (m *MemoryStore) FindNodes(ctx context.Context, ids []string) ([]state.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]state.Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := m.nodes[id]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func (m *MemoryStore) ListNodes(ctx context.Context, boardID string) ([]state.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]state.Node, 0)
	for _, node := range m.nodes {
		if node.BoardID == boardID {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		return m.nodeSeq[nodes[i].ID] < m.nodeSeq[nodes[j].ID]
	})
	return nodes, nil
}

func (m *MemoryStore) CreateNode(ctx context.Context, node state.Node) error {
	if err := node.Validate(); err != nil {
		return apperrors.NewValidation("node", err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.boards[node.BoardID]; !ok {
		return apperrors.NewNotFound("board", node.BoardID)
	}
	if _, ok := m.nodes[node.ID]; ok {
		return apperrors.NewStorageFault("create node", errDuplicateID(node.ID))
	}

	now := m.nowFunc()
	node.CreatedAt = now
	node.UpdatedAt = now
	m.seq++
	m.nodes[node.ID] = node
	m.nodeSeq[node.ID] = m.seq
	return nil
}

func (m *MemoryStore) UpdateNode(ctx context.Context, boardID, nodeID string, upd state.NodeUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[nodeID]
	if !ok || node.BoardID != boardID {
		return apperrors.NewNotFound("node", nodeID)
	}
	if upd.IsEmpty() {
		return nil
	}

	upd.Apply(&node)
	node.UpdatedAt = m.nowFunc()
	m.nodes[nodeID] = node
	return nil
}

func (m *MemoryStore) DeleteNode(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[nodeID]; !ok {
		return apperrors.NewNotFound("node", nodeID)
	}
	delete(m.nodes, nodeID)
	delete(m.nodeSeq, nodeID)

	// DETACH semantics: edges touching the node go with it
	for id, edge := range m.edges {
		if edge.SourceNodeID == nodeID || edge.TargetNodeID == nodeID {
			delete(m.edges, id)
			delete(m.edgeSeq, id)
		}
	}
	return nil
}

func (m *MemoryStore) FindParentEdges(ctx context.Context, boardID, targetNodeID string) ([]state.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.liveEdges(func(e state.Edge) bool {
		return e.BoardID == boardID && e.TargetNodeID == targetNodeID
	}), nil
}

func (m *MemoryStore) ListEdges(ctx context.Context, boardID string) ([]state.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.liveEdges(func(e state.Edge) bool {
		return e.BoardID == boardID
	}), nil
}

func (m *MemoryStore) CreateEdge(ctx context.Context, edge state.Edge) error {
	if err := edge.Validate(); err != nil {
		return apperrors.NewValidation("edge", err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	source, ok := m.nodes[edge.SourceNodeID]
	if !ok || source.BoardID != edge.BoardID {
		return apperrors.NewNotFound("node", edge.SourceNodeID)
	}
	target, ok := m.nodes[edge.TargetNodeID]
	if !ok || target.BoardID != edge.BoardID {
		return apperrors.NewNotFound("node", edge.TargetNodeID)
	}
	if _, ok := m.edges[edge.ID]; ok {
		return apperrors.NewStorageFault("create edge", errDuplicateID(edge.ID))
	}

	edge.IsDeleted = false
	edge.CreatedAt = m.nowFunc()
	m.seq++
	m.edges[edge.ID] = edge
	m.edgeSeq[edge.ID] = m.seq
	return nil
}

func (m *MemoryStore) DeleteEdge(ctx context.Context, edgeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	edge, ok := m.edges[edgeID]
	if !ok {
		return apperrors.NewNotFound("edge", edgeID)
	}
	edge.IsDeleted = true
	m.edges[edgeID] = edge
	return nil
}

// liveEdges returns matching non-deleted edges, oldest first. Callers hold mu.
func (m *MemoryStore) liveEdges(match func(state.Edge) bool) []state.Edge {
	edges := make([]state.Edge, 0)
	for _, edge := range m.edges {
		if !edge.IsDeleted && match(edge) {
			edges = append(edges, edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.Before(edges[j].CreatedAt)
		}
		return m.edgeSeq[edges[i].ID] < m.edgeSeq[edges[j].ID]
	})
	return edges
}

type errDuplicateID string

func (e errDuplicateID) Error() string {
	return "duplicate id: " + string(e)
}
