package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
)

// ============================================================================
// Edge Operations
// ============================================================================

const edgeProjection = `e {.*, source_node_id: s.id, target_node_id: t.id} AS edge`

// FindParentEdges returns the live edges of a board that point at targetNodeID,
// oldest first.
func (r *Repository) FindParentEdges(ctx context.Context, boardID, targetNodeID string) ([]state.Edge, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (s:Node)-[e:EDGE {board_id: $boardID}]->(t:Node {id: $targetID})
		WHERE coalesce(e.is_deleted, false) = false
		RETURN `+edgeProjection+`
		ORDER BY e.created_at, e.id
	`, map[string]interface{}{
		"boardID":  boardID,
		"targetID": targetNodeID,
	})
	if err != nil {
		return nil, apperrors.NewStorageFault("find parent edges", err)
	}
	return collectEdges(ctx, result, "find parent edges")
}

// ListEdges returns the live edges of a board
func (r *Repository) ListEdges(ctx context.Context, boardID string) ([]state.Edge, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (s:Node)-[e:EDGE {board_id: $boardID}]->(t:Node)
		WHERE coalesce(e.is_deleted, false) = false
		RETURN `+edgeProjection+`
		ORDER BY e.created_at, e.id
	`, map[string]interface{}{"boardID": boardID})
	if err != nil {
		return nil, apperrors.NewStorageFault("list edges", err)
	}
	return collectEdges(ctx, result, "list edges")
}

// CreateEdge links two nodes of the same board
func (r *Repository) CreateEdge(ctx context.Context, edge state.Edge) error {
	if err := edge.Validate(); err != nil {
		return apperrors.NewValidation("edge", err.Error())
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (s:Node {id: $sourceID, board_id: $boardID})
		MATCH (t:Node {id: $targetID, board_id: $boardID})
		CREATE (s)-[e:EDGE {
			id: $edgeID,
			board_id: $boardID,
			edge_type: $edgeType,
			label: $label,
			is_deleted: false,
			created_at: datetime($now)
		}]->(t)
		RETURN e.id AS id
	`, map[string]interface{}{
		"edgeID":   edge.ID,
		"boardID":  edge.BoardID,
		"sourceID": edge.SourceNodeID,
		"targetID": edge.TargetNodeID,
		"edgeType": edge.EdgeType,
		"label":    edge.Label,
		"now":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return apperrors.NewStorageFault("create edge", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return apperrors.NewStorageFault("create edge", err)
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("edge endpoint", edge.SourceNodeID+" -> "+edge.TargetNodeID)
	}
	return nil
}

// DeleteEdge soft-deletes an edge so it drops out of parent traversal
func (r *Repository) DeleteEdge(ctx context.Context, edgeID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH ()-[e:EDGE {id: $edgeID}]->()
		SET e.is_deleted = true
		RETURN e.id AS id
	`, map[string]interface{}{"edgeID": edgeID})
	if err != nil {
		return apperrors.NewStorageFault("delete edge", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return apperrors.NewStorageFault("delete edge", err)
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("edge", edgeID)
	}
	return nil
}

func collectEdges(ctx context.Context, result neo4j.ResultWithContext, op string) ([]state.Edge, error) {
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFault(op, err)
	}

	edges := make([]state.Edge, 0, len(records))
	for _, record := range records {
		edges = append(edges, edgeFromMap(getMapFromRecord(record, "edge")))
	}
	return edges, nil
}
