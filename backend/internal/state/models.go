package state

import (
	"fmt"
	"time"
)

// Board is the top-level collaborative document
type Board struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Node is a unit of content on a board. Empty text fields are treated as
// absent; Context is a cache derived from the node's ancestors.
type Node struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	Title     string    `json:"title,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Response  string    `json:"response,omitempty"`
	Context   string    `json:"context,omitempty"`
	Role      string    `json:"role,omitempty"`
	Type      string    `json:"type,omitempty"`
	Model     string    `json:"model,omitempty"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Width     float64   `json:"width,omitempty"`
	Height    float64   `json:"height,omitempty"`
	IsRoot    bool      `json:"is_root"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Edge is a directed parent -> child relation between two nodes of a board
type Edge struct {
	ID           string    `json:"id"`
	BoardID      string    `json:"board_id"`
	SourceNodeID string    `json:"source_node_id"`
	TargetNodeID string    `json:"target_node_id"`
	EdgeType     string    `json:"edge_type,omitempty"`
	Label        string    `json:"label,omitempty"`
	IsDeleted    bool      `json:"is_deleted"`
	CreatedAt    time.Time `json:"created_at"`
}

// NodeUpdate carries the fields to change on a node; nil means unchanged
type NodeUpdate struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Prompt   *string  `json:"prompt,omitempty"`
	Response *string  `json:"response,omitempty"`
	Context  *string  `json:"context,omitempty"`
	Role     *string  `json:"role,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u NodeUpdate) IsEmpty() bool {
	return u.X == nil && u.Y == nil && u.Title == nil && u.Prompt == nil &&
		u.Response == nil && u.Context == nil && u.Role == nil
}

// Apply copies the set fields of u onto n
func (u NodeUpdate) Apply(n *Node) {
	if u.X != nil {
		n.X = *u.X
	}
	if u.Y != nil {
		n.Y = *u.Y
	}
	if u.Title != nil {
		n.Title = *u.Title
	}
	if u.Prompt != nil {
		n.Prompt = *u.Prompt
	}
	if u.Response != nil {
		n.Response = *u.Response
	}
	if u.Context != nil {
		n.Context = *u.Context
	}
	if u.Role != nil {
		n.Role = *u.Role
	}
}

// Fields flattens the update into storage property names
func (u NodeUpdate) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if u.X != nil {
		fields["x"] = *u.X
	}
	if u.Y != nil {
		fields["y"] = *u.Y
	}
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.Prompt != nil {
		fields["prompt"] = *u.Prompt
	}
	if u.Response != nil {
		fields["response"] = *u.Response
	}
	if u.Context != nil {
		fields["context"] = *u.Context
	}
	if u.Role != nil {
		fields["role"] = *u.Role
	}
	return fields
}

// PositionUpdate builds an update moving a node to (x, y)
func PositionUpdate(x, y float64) NodeUpdate {
	return NodeUpdate{X: &x, Y: &y}
}

// ContextUpdate builds an update overwriting a node's context
func ContextUpdate(context string) NodeUpdate {
	return NodeUpdate{Context: &context}
}

// Validate checks if the Node is valid
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrInvalidNode{Field: "id", Reason: "cannot be empty"}
	}
	if n.BoardID == "" {
		return ErrInvalidNode{Field: "board_id", Reason: "cannot be empty"}
	}
	return nil
}

// Validate checks if the Edge is valid
func (e *Edge) Validate() error {
	switch {
	case e.ID == "":
		return ErrInvalidEdge{Field: "id", Reason: "cannot be empty"}
	case e.BoardID == "":
		return ErrInvalidEdge{Field: "board_id", Reason: "cannot be empty"}
	case e.SourceNodeID == "" || e.TargetNodeID == "":
		return ErrInvalidEdge{Field: "source_node_id/target_node_id", Reason: "cannot be empty"}
	case e.SourceNodeID == e.TargetNodeID:
		return ErrInvalidEdge{Field: "target_node_id", Reason: "edge cannot point at its own source"}
	}
	return nil
}

// Errors

type ErrInvalidNode struct {
	Field  string
	Reason string
}

func (e ErrInvalidNode) Error() string {
	return fmt.Sprintf("invalid node: %s - %s", e.Field, e.Reason)
}

type ErrInvalidEdge struct {
	Field  string
	Reason string
}

func (e ErrInvalidEdge) Error() string {
	return fmt.Sprintf("invalid edge: %s - %s", e.Field, e.Reason)
}
