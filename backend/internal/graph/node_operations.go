package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
)

// ============================================================================
// Node Operations
// ============================================================================

// GetNode fetches a node by id regardless of board
func (r *Repository) GetNode(ctx context.Context, nodeID string) (*state.Node, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (n:Node {id: $nodeID})
		RETURN n {.*} AS node
	`, map[string]interface{}{"nodeID": nodeID})
	if err != nil {
		return nil, apperrors.NewStorageFault("get node", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFault("get node", err)
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("node", nodeID)
	}

	node := nodeFromMap(getMapFromRecord(records[0], "node"))
	return &node, nil
}

// FindNodes fetches the given nodes in the order of ids. Unknown ids are skipped.
func (r *Repository) FindNodes(ctx context.Context, ids []string) ([]state.Node, error) {
	if len(ids) == 0 {
		return []state.Node{}, nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		UNWIND range(0, size($ids) - 1) AS i
		MATCH (n:Node {id: $ids[i]})
		RETURN n {.*} AS node
		ORDER BY i
	`, map[string]interface{}{"ids": ids})
	if err != nil {
		return nil, apperrors.NewStorageFault("find nodes", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFault("find nodes", err)
	}

	nodes := make([]state.Node, 0, len(records))
	for _, record := range records {
		nodes = append(nodes, nodeFromMap(getMapFromRecord(record, "node")))
	}
	return nodes, nil
}

// ListNodes returns every node of a board ordered by creation
func (r *Repository) ListNodes(ctx context.Context, boardID string) ([]state.Node, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (n:Node {board_id: $boardID})
		RETURN n {.*} AS node
		ORDER BY n.created_at, n.id
	`, map[string]interface{}{"boardID": boardID})
	if err != nil {
		return nil, apperrors.NewStorageFault("list nodes", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFault("list nodes", err)
	}

	nodes := make([]state.Node, 0, len(records))
	for _, record := range records {
		nodes = append(nodes, nodeFromMap(getMapFromRecord(record, "node")))
	}
	return nodes, nil
}

// CreateNode attaches a new node to its board
func (r *Repository) CreateNode(ctx context.Context, node state.Node) error {
	if err := node.Validate(); err != nil {
		return apperrors.NewValidation("node", err.Error())
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (b:Board {id: $boardID})
		CREATE (b)-[:HAS_NODE]->(n:Node)
		SET n = $props,
		    n.created_at = datetime($now),
		    n.updated_at = datetime($now)
		RETURN n.id AS id
	`, map[string]interface{}{
		"boardID": node.BoardID,
		"props":   nodeProperties(node),
		"now":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return apperrors.NewStorageFault("create node", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return apperrors.NewStorageFault("create node", err)
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("board", node.BoardID)
	}

	r.logger.Debug("Node created",
		zap.String("board_id", node.BoardID),
		zap.String("node_id", node.ID),
	)
	return nil
}

// UpdateNode applies upd to the node identified by id and board
func (r *Repository) UpdateNode(ctx context.Context, boardID, nodeID string, upd state.NodeUpdate) error {
	if upd.IsEmpty() {
		return nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (n:Node {id: $nodeID, board_id: $boardID})
		SET n += $fields,
		    n.updated_at = datetime($now)
		RETURN n.id AS id
	`, map[string]interface{}{
		"nodeID":  nodeID,
		"boardID": boardID,
		"fields":  upd.Fields(),
		"now":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return apperrors.NewStorageFault("update node", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return apperrors.NewStorageFault("update node", err)
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("node", nodeID)
	}
	return nil
}

// DeleteNode removes a node together with its edges
func (r *Repository) DeleteNode(ctx context.Context, nodeID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (n:Node {id: $nodeID})
		WITH n, n.id AS id
		DETACH DELETE n
		RETURN count(id) AS deleted
	`, map[string]interface{}{"nodeID": nodeID})
	if err != nil {
		return apperrors.NewStorageFault("delete node", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return apperrors.NewStorageFault("delete node", err)
	}
	if getInt64FromRecord(record, "deleted") == 0 {
		return apperrors.NewNotFound("node", nodeID)
	}

	r.logger.Debug("Node deleted", zap.String("node_id", nodeID))
	return nil
}
