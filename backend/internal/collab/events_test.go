package collab

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "branchboard/backend/pkg/errors"
)

func TestEncode_TypeFirst(t *testing.T) {
	out, err := Encode(UserJoined{BoardID: "b1", UserCount: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"user_joined","board_id":"b1","user_count":2}`, string(out))

	out, err = Encode(NodeCreated{NodeData: json.RawMessage(`{"id":"n1"}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"node_created","node_data":{"id":"n1"}}`, string(out))

	_, err = Encode(Unknown{Kind: "x"})
	assert.Error(t, err)
}

func TestDecode_Classification(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		malformed string
		wantType  string
	}{
		{name: "syntax error", raw: `{nope`, malformed: "Invalid JSON"},
		{name: "not an object", raw: `[1,2]`, malformed: "Expected a JSON object"},
		{name: "missing type", raw: `{"node_id":"n"}`, malformed: "Missing message type"},
		{name: "numeric type", raw: `{"type":5}`, malformed: "Message type must be a string"},
		{name: "wrong field type", raw: `{"type":"node_moved","node_id":"n","x":"ten","y":1}`, malformed: "Invalid node_moved payload"},
		{name: "unknown", raw: `{"type":"wave"}`, wantType: "wave"},
		{name: "node moved", raw: `{"type":"node_moved","node_id":"n","x":0,"y":0}`, wantType: TypeNodeMoved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			if tt.malformed != "" {
				var malformed *apperrors.ErrMalformedInput
				require.True(t, errors.As(err, &malformed), "got %v", err)
				assert.Equal(t, tt.malformed, malformed.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, ev.Type())
		})
	}
}

func TestDecode_ZeroCoordinatesAreValid(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"node_moved","node_id":"n","x":0,"y":0}`))
	require.NoError(t, err)
	assert.Equal(t, NodeMoved{NodeID: "n"}, ev)
}

func TestDecode_Incomplete(t *testing.T) {
	_, err := Decode([]byte(`{"type":"node_moved","node_id":"n","y":3}`))
	assert.True(t, errors.Is(err, ErrIncomplete))
}

func TestDecode_WhitespaceOnlyPayloadIsIncomplete(t *testing.T) {
	for _, raw := range []string{
		`{"type":"node_created","node_data":{ }}`,
		`{"type":"edge_created","edge_data":[ ]}`,
		"{\"type\":\"cursor_moved\",\"cursor_data\":{\n}}",
	} {
		_, err := Decode([]byte(raw))
		assert.True(t, errors.Is(err, ErrIncomplete), raw)
	}

	ev, err := Decode([]byte(`{"type":"node_created","node_data":{ "id": "n1" }}`))
	require.NoError(t, err)
	assert.Equal(t, TypeNodeCreated, ev.Type())
}

func TestDecode_NodeMovedRequiresTypedFields(t *testing.T) {
	for _, raw := range []string{
		`{"type":"node_moved","node_id":7,"x":1,"y":1}`,
		`{"type":"node_moved","node_id":"n","x":"1","y":1}`,
	} {
		_, err := Decode([]byte(raw))
		var malformed *apperrors.ErrMalformedInput
		require.True(t, errors.As(err, &malformed), raw)
		assert.Equal(t, "Invalid node_moved payload", malformed.Reason)
	}
}
