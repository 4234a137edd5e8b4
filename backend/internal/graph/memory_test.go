package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreateBoard(ctx, state.Board{ID: "b1", Name: "Board"}))
	for _, id := range []string{"p1", "p2", "c"} {
		require.NoError(t, store.CreateNode(ctx, state.Node{ID: id, BoardID: "b1", Title: id}))
	}
	return store
}

func TestMemoryStore_CreateNode_UnknownBoard(t *testing.T) {
	store := NewMemoryStore()
	err := store.CreateNode(context.Background(), state.Node{ID: "n", BoardID: "missing"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStore_FindNodes_PreservesOrder(t *testing.T) {
	store := seededStore(t)

	nodes, err := store.FindNodes(context.Background(), []string{"c", "missing", "p1"})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "c", nodes[0].ID)
	assert.Equal(t, "p1", nodes[1].ID)
}

func TestMemoryStore_FindParentEdges_OrderAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.nowFunc = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, store.CreateEdge(ctx, state.Edge{ID: "e2", BoardID: "b1", SourceNodeID: "p2", TargetNodeID: "c"}))
	require.NoError(t, store.CreateEdge(ctx, state.Edge{ID: "e1", BoardID: "b1", SourceNodeID: "p1", TargetNodeID: "c"}))

	edges, err := store.FindParentEdges(ctx, "b1", "c")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "e2", edges[0].ID)
	assert.Equal(t, "e1", edges[1].ID)

	require.NoError(t, store.DeleteEdge(ctx, "e2"))
	edges, err = store.FindParentEdges(ctx, "b1", "c")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "p1", edges[0].SourceNodeID)

	all, err := store.ListEdges(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_FindParentEdges_OtherBoardIgnored(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	require.NoError(t, store.CreateBoard(ctx, state.Board{ID: "b2"}))
	require.NoError(t, store.CreateEdge(ctx, state.Edge{ID: "e1", BoardID: "b1", SourceNodeID: "p1", TargetNodeID: "c"}))

	edges, err := store.FindParentEdges(ctx, "b2", "c")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMemoryStore_CreateEdge_Validation(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	err := store.CreateEdge(ctx, state.Edge{ID: "e", BoardID: "b1", SourceNodeID: "c", TargetNodeID: "c"})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	err = store.CreateEdge(ctx, state.Edge{ID: "e", BoardID: "b1", SourceNodeID: "p1", TargetNodeID: "ghost"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStore_UpdateNode(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	require.NoError(t, store.UpdateNode(ctx, "b1", "p1", state.PositionUpdate(12, 34)))
	node, err := store.GetNode(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, node.X)
	assert.Equal(t, 34.0, node.Y)
	assert.Equal(t, "p1", node.Title)

	err = store.UpdateNode(ctx, "other-board", "p1", state.ContextUpdate("x"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStore_DeleteNode_RemovesEdges(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	require.NoError(t, store.CreateEdge(ctx, state.Edge{ID: "e1", BoardID: "b1", SourceNodeID: "p1", TargetNodeID: "c"}))

	require.NoError(t, store.DeleteNode(ctx, "p1"))

	_, err := store.GetNode(ctx, "p1")
	assert.True(t, apperrors.IsNotFound(err))
	edges, err := store.ListEdges(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, edges)

	assert.True(t, apperrors.IsNotFound(store.DeleteNode(ctx, "p1")))
}

func TestMemoryStore_ListNodes_InsertionOrder(t *testing.T) {
	store := seededStore(t)

	nodes, err := store.ListNodes(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, []string{"p1", "p2", "c"}, []string{nodes[0].ID, nodes[1].ID, nodes[2].ID})
}
