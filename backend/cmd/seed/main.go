package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"branchboard/backend/internal/constants"
	"branchboard/backend/internal/graph"
	"branchboard/backend/internal/state"
	"branchboard/backend/pkg/config"
	"branchboard/backend/pkg/logger"
)

func main() {
	boardID := flag.String("board-id", "board-001", "Board ID to create")
	force := flag.Bool("force", false, "Force recreation even if board exists")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	repo := graph.NewRepository(driver)

	log.Info("Creating constraints and indexes...")
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to create schema", zap.Error(err))
	}

	// Check if board already exists
	if existing, err := repo.GetBoard(ctx, *boardID); err == nil {
		if !*force {
			log.Info("Board already exists, skipping creation (use -force to recreate)",
				zap.String("board_id", existing.ID),
				zap.String("name", existing.Name),
			)
			os.Exit(0)
		}
		log.Info("Deleting existing board", zap.String("board_id", *boardID))
		if err := repo.DeleteBoard(ctx, *boardID); err != nil {
			log.Fatal("Failed to delete board", zap.Error(err))
		}
	}

	if err := seedBoard(ctx, repo, *boardID); err != nil {
		log.Fatal("Failed to seed board", zap.Error(err))
	}

	log.Info("Seeding completed successfully", zap.String("board_id", *boardID))
}

// seedBoard creates a demo board holding a root exchange and one follow-up
func seedBoard(ctx context.Context, store graph.Store, boardID string) error {
	board := state.Board{ID: boardID, Name: "Demo Board", CreatedAt: time.Now().UTC()}
	if err := store.CreateBoard(ctx, board); err != nil {
		return fmt.Errorf("create board: %w", err)
	}

	root := state.Node{
		ID:       constants.NodeIDPrefix + "root0001",
		BoardID:  boardID,
		Title:    "Getting started",
		Prompt:   "What is a branching conversation?",
		Response: "A conversation where any answer can be forked into a new line of questions that keeps its parents as context.",
		Role:     constants.RoleAssistant,
		Type:     constants.NodeTypeCustom,
		Model:    constants.DefaultModel,
		X:        100,
		Y:        100,
		Width:    constants.HighlightWidth,
		Height:   200,
		IsRoot:   true,
	}
	child := state.Node{
		ID:      constants.NodeIDPrefix + "child001",
		BoardID: boardID,
		Title:   "Follow-up",
		Prompt:  "How is context passed to a branch?",
		Role:    constants.RoleUser,
		Type:    constants.NodeTypeCustom,
		Model:   constants.DefaultModel,
		X:       root.X + constants.FullOffsetX,
		Y:       root.Y + constants.FullOffsetY,
		Width:   constants.FullBranchWidth,
		Height:  constants.FullBranchHeight,
	}

	for _, node := range []state.Node{root, child} {
		if err := store.CreateNode(ctx, node); err != nil {
			return fmt.Errorf("create node %s: %w", node.ID, err)
		}
	}

	edge := state.Edge{
		ID:           constants.EdgeIDPrefix + "seed0001",
		BoardID:      boardID,
		SourceNodeID: root.ID,
		TargetNodeID: child.ID,
		EdgeType:     constants.EdgeTypeDefault,
	}
	if err := store.CreateEdge(ctx, edge); err != nil {
		return fmt.Errorf("create edge: %w", err)
	}
	return nil
}
