package chain

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"branchboard/backend/internal/constants"
	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
	"branchboard/backend/pkg/logger"
)

const (
	contextHeader   = "=== Context from Parent Nodes ===\n"
	highlightHeader = "=== HIGHLIGHTED TEXT (Focus on this) ==="
)

var (
	parentSeparator = "\n" + strings.Repeat("-", 50) + "\n"
	contextFooter   = strings.Repeat("=", 33) + "\n"
	highlightRule   = strings.Repeat("=", 50)
)

// Store is the slice of the graph store the builder reads and writes
type Store interface {
	GetNode(ctx context.Context, nodeID string) (*state.Node, error)
	FindNodes(ctx context.Context, ids []string) ([]state.Node, error)
	FindParentEdges(ctx context.Context, boardID, targetNodeID string) ([]state.Edge, error)
	UpdateNode(ctx context.Context, boardID, nodeID string, upd state.NodeUpdate) error
}

// Builder assembles layered conversational context from a node's ancestors.
// Storage faults never escape: they are logged and degrade to empty context.
type Builder struct {
	store  Store
	logger *zap.Logger
}

// NewBuilder creates a context chain builder over store
func NewBuilder(store Store) *Builder {
	return &Builder{
		store:  store,
		logger: logger.Get(),
	}
}

// ParentNodesOf returns the parents of nodeID on boardID in edge order.
// Self-referencing edges and repeated parents are skipped.
func (b *Builder) ParentNodesOf(ctx context.Context, nodeID, boardID string) []state.Node {
	edges, err := b.store.FindParentEdges(ctx, boardID, nodeID)
	if err != nil {
		b.warn("find parent edges", nodeID, boardID, err)
		return nil
	}
	if len(edges) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(edges))
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		if edge.SourceNodeID == nodeID || seen[edge.SourceNodeID] {
			continue
		}
		seen[edge.SourceNodeID] = true
		ids = append(ids, edge.SourceNodeID)
	}
	if len(ids) == 0 {
		return nil
	}

	parents, err := b.store.FindNodes(ctx, ids)
	if err != nil {
		b.warn("find parent nodes", nodeID, boardID, err)
		return nil
	}
	return parents
}

// Compose renders parents into one context block. It returns "" when there
// are no parents. The output is a pure function of the parents' fields.
func Compose(parents []state.Node) string {
	if len(parents) == 0 {
		return ""
	}

	parts := []string{contextHeader}
	for _, parent := range parents {
		if parent.Title != "" {
			parts = append(parts, fmt.Sprintf("\n[%s]", parent.Title))
		}
		if parent.Prompt != "" {
			parts = append(parts, "User: "+parent.Prompt)
		}
		if parent.Response != "" {
			parts = append(parts, "Assistant: "+parent.Response)
		}
		// the parent's own context carries its ancestors
		if parent.Context != "" {
			parts = append(parts, "\n"+parent.Context)
		}
		parts = append(parts, parentSeparator)
	}
	parts = append(parts, contextFooter)

	return strings.Join(parts, "\n")
}

// Refresh recomputes the context of nodeID from its current parents and
// stores it. Nodes without parents keep their stored context and "" is
// returned.
func (b *Builder) Refresh(ctx context.Context, nodeID, boardID string) string {
	composed := Compose(b.ParentNodesOf(ctx, nodeID, boardID))
	if composed == "" {
		return ""
	}

	if err := b.store.UpdateNode(ctx, boardID, nodeID, state.ContextUpdate(composed)); err != nil {
		b.warn("store context", nodeID, boardID, err)
	}
	return composed
}

// ComposeWithHighlight builds the context for a node branched off a text
// selection inside parentNodeID. The highlighted text is quoted verbatim.
func (b *Builder) ComposeWithHighlight(ctx context.Context, parentNodeID, highlighted, boardID string) (string, error) {
	parent, err := b.store.GetNode(ctx, parentNodeID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", err
		}
		b.warn("get highlight parent", parentNodeID, boardID, err)
		return "", nil
	}
	if parent.BoardID != "" && parent.BoardID != boardID {
		return "", apperrors.NewNotFound("node", parentNodeID)
	}

	var parts []string
	if parent.Context != "" {
		parts = append(parts, parent.Context, "\n"+highlightRule+"\n")
	}
	if parent.Prompt != "" {
		parts = append(parts, "Parent Node - User: "+parent.Prompt)
	}
	if parent.Response != "" {
		parts = append(parts, "Parent Node - Assistant: "+parent.Response)
	}
	parts = append(parts,
		"\n"+highlightRule,
		highlightHeader,
		`"`+highlighted+`"`,
		highlightRule+"\n",
	)

	return strings.Join(parts, "\n"), nil
}

// RefreshLineage refreshes every ancestor of nodeID root-first and then the
// node itself, so context edits anywhere above propagate down in one call.
// A node reached again while its own ancestors are being walked closes a
// cycle; that branch is logged and cut.
func (b *Builder) RefreshLineage(ctx context.Context, nodeID, boardID string) string {
	w := &lineageWalk{
		builder: b,
		boardID: boardID,
		state:   make(map[string]visitState),
	}
	w.visit(ctx, nodeID, 0)

	// every ancestor has been refreshed in post order; the target is last
	for _, id := range w.order[:len(w.order)-1] {
		b.Refresh(ctx, id, boardID)
	}
	return b.Refresh(ctx, nodeID, boardID)
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	done
)

type lineageWalk struct {
	builder *Builder
	boardID string
	state   map[string]visitState
	order   []string
}

func (w *lineageWalk) visit(ctx context.Context, nodeID string, depth int) {
	w.state[nodeID] = visiting
	defer func() {
		w.state[nodeID] = done
		w.order = append(w.order, nodeID)
	}()

	if depth >= constants.MaxLineageDepth || ctx.Err() != nil {
		return
	}

	edges, err := w.builder.store.FindParentEdges(ctx, w.boardID, nodeID)
	if err != nil {
		w.builder.warn("find parent edges", nodeID, w.boardID, err)
		return
	}
	for _, edge := range edges {
		parentID := edge.SourceNodeID
		switch w.state[parentID] {
		case visiting:
			w.builder.logger.Warn("Cycle in node lineage",
				zap.String("board_id", w.boardID),
				zap.String("node_id", nodeID),
				zap.String("parent_id", parentID),
			)
		case unvisited:
			w.visit(ctx, parentID, depth+1)
		}
	}
}

func (b *Builder) warn(op, nodeID, boardID string, err error) {
	b.logger.Warn("Context chain degraded",
		zap.String("operation", op),
		zap.String("node_id", nodeID),
		zap.String("board_id", boardID),
		zap.Error(err),
	)
}
