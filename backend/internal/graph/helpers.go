package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"branchboard/backend/internal/state"
)

// ============================================================================
// Record decoding
// ============================================================================

func getMapFromRecord(record *neo4j.Record, key string) map[string]interface{} {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	if m, ok := val.(map[string]interface{}); ok {
		return m
	}
	return nil
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	return 0
}

func getStringFromMap(m map[string]interface{}, key string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getFloat64FromMap(m map[string]interface{}, key string) float64 {
	val, ok := m[key]
	if !ok || val == nil {
		return 0.0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0.0
}

func getBoolFromMap(m map[string]interface{}, key string) bool {
	val, ok := m[key]
	if !ok || val == nil {
		return false
	}
	b, _ := val.(bool)
	return b
}

func getTimeFromMap(m map[string]interface{}, key string) time.Time {
	val, ok := m[key]
	if !ok || val == nil {
		return time.Time{}
	}
	// Neo4j datetime values come as time.Time
	switch v := val.(type) {
	case time.Time:
		return v
	case neo4j.LocalDateTime:
		return v.Time()
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boardFromMap(m map[string]interface{}) state.Board {
	return state.Board{
		ID:        getStringFromMap(m, "id"),
		Name:      getStringFromMap(m, "name"),
		CreatedAt: getTimeFromMap(m, "created_at"),
	}
}

func nodeFromMap(m map[string]interface{}) state.Node {
	return state.Node{
		ID:        getStringFromMap(m, "id"),
		BoardID:   getStringFromMap(m, "board_id"),
		Title:     getStringFromMap(m, "title"),
		Prompt:    getStringFromMap(m, "prompt"),
		Response:  getStringFromMap(m, "response"),
		Context:   getStringFromMap(m, "context"),
		Role:      getStringFromMap(m, "role"),
		Type:      getStringFromMap(m, "type"),
		Model:     getStringFromMap(m, "model"),
		X:         getFloat64FromMap(m, "x"),
		Y:         getFloat64FromMap(m, "y"),
		Width:     getFloat64FromMap(m, "width"),
		Height:    getFloat64FromMap(m, "height"),
		IsRoot:    getBoolFromMap(m, "is_root"),
		CreatedAt: getTimeFromMap(m, "created_at"),
		UpdatedAt: getTimeFromMap(m, "updated_at"),
	}
}

func edgeFromMap(m map[string]interface{}) state.Edge {
	return state.Edge{
		ID:           getStringFromMap(m, "id"),
		BoardID:      getStringFromMap(m, "board_id"),
		SourceNodeID: getStringFromMap(m, "source_node_id"),
		TargetNodeID: getStringFromMap(m, "target_node_id"),
		EdgeType:     getStringFromMap(m, "edge_type"),
		Label:        getStringFromMap(m, "label"),
		IsDeleted:    getBoolFromMap(m, "is_deleted"),
		CreatedAt:    getTimeFromMap(m, "created_at"),
	}
}

// nodeProperties is the property map written on CREATE. Timestamps are set
// by the query itself.
func nodeProperties(n state.Node) map[string]interface{} {
	return map[string]interface{}{
		"id":       n.ID,
		"board_id": n.BoardID,
		"title":    n.Title,
		"prompt":   n.Prompt,
		"response": n.Response,
		"context":  n.Context,
		"role":     n.Role,
		"type":     n.Type,
		"model":    n.Model,
		"x":        n.X,
		"y":        n.Y,
		"width":    n.Width,
		"height":   n.Height,
		"is_root":  n.IsRoot,
	}
}
