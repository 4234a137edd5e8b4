package collab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "branchboard/backend/pkg/errors"
)

// Event types on the board channel
const (
	TypeNodeMoved   = "node_moved"
	TypeNodeCreated = "node_created"
	TypeNodeUpdated = "node_updated"
	TypeNodeDeleted = "node_deleted"
	TypeEdgeCreated = "edge_created"
	TypeEdgeDeleted = "edge_deleted"
	TypeCursorMoved = "cursor_moved"

	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeError      = "error"
)

// ErrIncomplete is returned by Decode for a known event missing a required
// field. Such events are dropped without a reply.
var ErrIncomplete = errors.New("incomplete event")

// Event is one message on a board channel
type Event interface {
	Type() string
}

type NodeMoved struct {
	NodeID string  `json:"node_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// NodeCreated carries the node as the client sent it
type NodeCreated struct {
	NodeData json.RawMessage `json:"node_data"`
}

type NodeUpdated struct {
	NodeID  string          `json:"node_id"`
	Updates json.RawMessage `json:"updates"`
}

type NodeDeleted struct {
	NodeID string `json:"node_id"`
}

type EdgeCreated struct {
	EdgeData json.RawMessage `json:"edge_data"`
}

type EdgeDeleted struct {
	EdgeID string `json:"edge_id"`
}

type CursorMoved struct {
	CursorData json.RawMessage `json:"cursor_data"`
}

// UserJoined and UserLeft carry the room size after the change
type UserJoined struct {
	BoardID   string    `json:"board_id"`
	UserCount int       `json:"user_count"`
	User      *UserInfo `json:"user,omitempty"`
}

type UserLeft struct {
	BoardID   string `json:"board_id"`
	UserCount int    `json:"user_count"`
}

// Error is sent back to the connection whose frame was rejected
type Error struct {
	Message string `json:"message"`
}

// Unknown is an inbound event of a type this server does not handle
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (NodeMoved) Type() string   { return TypeNodeMoved }
func (NodeCreated) Type() string { return TypeNodeCreated }
func (NodeUpdated) Type() string { return TypeNodeUpdated }
func (NodeDeleted) Type() string { return TypeNodeDeleted }
func (EdgeCreated) Type() string { return TypeEdgeCreated }
func (EdgeDeleted) Type() string { return TypeEdgeDeleted }
func (CursorMoved) Type() string { return TypeCursorMoved }
func (UserJoined) Type() string  { return TypeUserJoined }
func (UserLeft) Type() string    { return TypeUserLeft }
func (Error) Type() string       { return TypeError }
func (u Unknown) Type() string   { return u.Kind }

// Encode renders ev as a JSON object whose first key is "type"
func Encode(ev Event) ([]byte, error) {
	if _, ok := ev.(Unknown); ok {
		return nil, fmt.Errorf("cannot encode unknown event type %q", ev.Type())
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Type(), err)
	}

	typeField, _ := json.Marshal(ev.Type())
	var buf bytes.Buffer
	buf.Grow(len(body) + len(typeField) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(typeField)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// wireEvent is the union of every inbound field. Pointers and raw values
// let Decode tell a missing field from a zero one.
type wireEvent struct {
	NodeID     string          `json:"node_id"`
	EdgeID     string          `json:"edge_id"`
	X          *float64        `json:"x"`
	Y          *float64        `json:"y"`
	NodeData   json.RawMessage `json:"node_data"`
	EdgeData   json.RawMessage `json:"edge_data"`
	Updates    json.RawMessage `json:"updates"`
	CursorData json.RawMessage `json:"cursor_data"`
}

// Decode parses one inbound frame.
//
// Unparseable input yields a malformed-input error whose Reason is the text
// to send back. Known types missing a required field yield ErrIncomplete.
// Unrecognized types decode to Unknown.
func Decode(raw []byte) (Event, error) {
	if !json.Valid(raw) {
		return nil, apperrors.NewMalformedInput("Invalid JSON", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperrors.NewMalformedInput("Expected a JSON object", err)
	}

	var kind string
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &kind); err != nil {
			return nil, apperrors.NewMalformedInput("Message type must be a string", err)
		}
	}
	if kind == "" {
		return nil, apperrors.NewMalformedInput("Missing message type", nil)
	}

	switch kind {
	case TypeNodeMoved, TypeNodeCreated, TypeNodeUpdated, TypeNodeDeleted,
		TypeEdgeCreated, TypeEdgeDeleted, TypeCursorMoved:
	default:
		return Unknown{Kind: kind, Raw: append(json.RawMessage(nil), raw...)}, nil
	}

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, apperrors.NewMalformedInput(fmt.Sprintf("Invalid %s payload", kind), err)
	}

	switch kind {
	case TypeNodeMoved:
		if w.NodeID == "" || w.X == nil || w.Y == nil {
			return nil, ErrIncomplete
		}
		return NodeMoved{NodeID: w.NodeID, X: *w.X, Y: *w.Y}, nil

	case TypeNodeCreated:
		if isEmptyJSON(w.NodeData) {
			return nil, ErrIncomplete
		}
		return NodeCreated{NodeData: w.NodeData}, nil

	case TypeNodeUpdated:
		if w.NodeID == "" {
			return nil, ErrIncomplete
		}
		updates := w.Updates
		if len(updates) == 0 || string(updates) == "null" {
			updates = json.RawMessage("{}")
		}
		return NodeUpdated{NodeID: w.NodeID, Updates: updates}, nil

	case TypeNodeDeleted:
		if w.NodeID == "" {
			return nil, ErrIncomplete
		}
		return NodeDeleted{NodeID: w.NodeID}, nil

	case TypeEdgeCreated:
		if isEmptyJSON(w.EdgeData) {
			return nil, ErrIncomplete
		}
		return EdgeCreated{EdgeData: w.EdgeData}, nil

	case TypeEdgeDeleted:
		if w.EdgeID == "" {
			return nil, ErrIncomplete
		}
		return EdgeDeleted{EdgeID: w.EdgeID}, nil

	default: // TypeCursorMoved
		if isEmptyJSON(w.CursorData) {
			return nil, ErrIncomplete
		}
		return CursorMoved{CursorData: w.CursorData}, nil
	}
}

// isEmptyJSON reports whether v is absent, null, or an empty value.
// Insignificant whitespace is ignored, so "{ }" counts as empty.
func isEmptyJSON(v json.RawMessage) bool {
	var compact bytes.Buffer
	if err := json.Compact(&compact, v); err != nil {
		compact.Reset()
		compact.Write(bytes.TrimSpace(v))
	}
	switch compact.String() {
	case "", "null", "{}", "[]", `""`, "false", "0":
		return true
	}
	return false
}
