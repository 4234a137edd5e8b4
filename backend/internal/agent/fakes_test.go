package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"branchboard/backend/internal/adapter"
	"branchboard/backend/internal/graph"
	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
	"branchboard/backend/pkg/logger"
)

func init() {
	logger.Replace(zap.NewNop())
}

var errBoom = errors.New("connection reset")

type fakeLLM struct {
	mu      sync.Mutex
	content string
	err     error
	prompts []string
	models  []string
}

func (f *fakeLLM) Generate(ctx context.Context, model, systemPrompt, userMsg string) (*adapter.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, userMsg)
	f.models = append(f.models, model)
	if f.err != nil {
		return nil, f.err
	}
	return &adapter.Response{
		Content:      f.content,
		Model:        model,
		FinishReason: "stop",
		Usage:        adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeLLM) GetModel() string { return "test-model" }

func (f *fakeLLM) modelsUsed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}

func (f *fakeLLM) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// failingStore wraps a MemoryStore and fails the named writes
type failingStore struct {
	*graph.MemoryStore
	createEdgeErr error
	deleteNodeErr error
	updateNodeErr error
}

func (s *failingStore) CreateEdge(ctx context.Context, edge state.Edge) error {
	if s.createEdgeErr != nil {
		return s.createEdgeErr
	}
	return s.MemoryStore.CreateEdge(ctx, edge)
}

func (s *failingStore) DeleteNode(ctx context.Context, nodeID string) error {
	if s.deleteNodeErr != nil {
		return s.deleteNodeErr
	}
	return s.MemoryStore.DeleteNode(ctx, nodeID)
}

func (s *failingStore) UpdateNode(ctx context.Context, boardID, nodeID string, upd state.NodeUpdate) error {
	if s.updateNodeErr != nil {
		return s.updateNodeErr
	}
	return s.MemoryStore.UpdateNode(ctx, boardID, nodeID, upd)
}

func newTestStore(t *testing.T) *graph.MemoryStore {
	t.Helper()
	store := graph.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateBoard(ctx, state.Board{ID: "b1", Name: "Board"}))
	require.NoError(t, store.CreateBoard(ctx, state.Board{ID: "b2", Name: "Other"}))
	return store
}

func addNode(t *testing.T, store *graph.MemoryStore, node state.Node) {
	t.Helper()
	if node.BoardID == "" {
		node.BoardID = "b1"
	}
	require.NoError(t, store.CreateNode(context.Background(), node))
}

func link(t *testing.T, store *graph.MemoryStore, id, source, target string) {
	t.Helper()
	require.NoError(t, store.CreateEdge(context.Background(), state.Edge{
		ID: id, BoardID: "b1", SourceNodeID: source, TargetNodeID: target,
	}))
}

// sequentialIDs makes ids predictable in assertions
func sequentialIDs() func(prefix string) string {
	var n int
	return func(prefix string) string {
		n++
		return fmt.Sprintf("%s%08d", prefix, n)
	}
}

func newTestOrchestrator(store Store, llm Generator) *Orchestrator {
	o := NewOrchestrator(store, llm)
	o.newID = sequentialIDs()
	return o
}

func storageFault(op string) error {
	return apperrors.NewStorageFault(op, errBoom)
}
