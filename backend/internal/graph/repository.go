package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
	"branchboard/backend/pkg/logger"
)

// Repository stores boards, nodes and edges in Neo4j.
//
// Layout:
//
//	(:Board {id})-[:HAS_NODE]->(:Node {id, board_id, ...})
//	(:Node)-[:EDGE {id, board_id, edge_type, label, is_deleted, created_at}]->(:Node)
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// EnsureSchema creates the uniqueness constraints the queries rely on
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT board_id IF NOT EXISTS FOR (b:Board) REQUIRE b.id IS UNIQUE",
		"CREATE CONSTRAINT node_id IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE",
		"CREATE INDEX node_board IF NOT EXISTS FOR (n:Node) ON (n.board_id)",
	}
	for _, stmt := range constraints {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return apperrors.NewStorageFault("ensure schema", err)
		}
	}
	return nil
}

// GetBoard returns the board or a not-found error
func (r *Repository) GetBoard(ctx context.Context, boardID string) (*state.Board, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (b:Board {id: $boardID})
		RETURN b {.*} AS board
	`, map[string]interface{}{"boardID": boardID})
	if err != nil {
		return nil, apperrors.NewStorageFault("get board", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFault("get board", err)
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("board", boardID)
	}

	board := boardFromMap(getMapFromRecord(records[0], "board"))
	return &board, nil
}

// CreateBoard creates the board, or renames it when it already exists
func (r *Repository) CreateBoard(ctx context.Context, board state.Board) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MERGE (b:Board {id: $boardID})
		ON CREATE SET b.created_at = datetime($now)
		SET b.name = $name
	`, map[string]interface{}{
		"boardID": board.ID,
		"name":    board.Name,
		"now":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return apperrors.NewStorageFault("create board", err)
	}

	r.logger.Info("Board created",
		zap.String("board_id", board.ID),
		zap.String("name", board.Name),
	)
	return nil
}

// DeleteBoard removes a board with all its nodes and edges
func (r *Repository) DeleteBoard(ctx context.Context, boardID string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MATCH (b:Board {id: $boardID})
		OPTIONAL MATCH (b)-[:HAS_NODE]->(n:Node)
		DETACH DELETE n, b
	`, map[string]interface{}{"boardID": boardID})
	if err != nil {
		return apperrors.NewStorageFault("delete board", err)
	}
	return nil
}
