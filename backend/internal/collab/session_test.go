package collab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSession(hub *Hub, conn *fakeConn, board string, store PositionStore) *Session {
	s := NewSession(hub, conn, board, nil, store)
	s.Open()
	return s
}

func TestSession_Lifecycle(t *testing.T) {
	hub := NewHub(nil)
	s := NewSession(hub, newFakeConn("a"), "b1", nil, nil)
	assert.Equal(t, StateConnecting, s.State())

	assert.Equal(t, 1, s.Open())
	assert.Equal(t, StateOpen, s.State())

	s.Close()
	s.Close()
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, hub.RoomSize("b1"))
}

func TestSession_JoinAndMoveScenario(t *testing.T) {
	hub := NewHub(nil)
	store := &recordingStore{}
	a, b := newFakeConn("a"), newFakeConn("b")

	sa := openSession(hub, a, "b1", store)
	openSession(hub, b, "b1", store)

	joined := a.ofType(t, TypeUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, 2.0, joined[0]["user_count"])
	assert.Empty(t, b.ofType(t, TypeUserJoined))

	sa.Handle(context.Background(), []byte(`{"type":"node_moved","node_id":"n1","x":10,"y":20}`))

	require.Len(t, store.updates, 1)
	assert.Equal(t, "b1", store.updates[0].boardID)
	assert.Equal(t, "n1", store.updates[0].nodeID)
	assert.Equal(t, 10.0, *store.updates[0].upd.X)
	assert.Equal(t, 20.0, *store.updates[0].upd.Y)

	moved := b.ofType(t, TypeNodeMoved)
	require.Len(t, moved, 1)
	assert.Equal(t, map[string]interface{}{"type": "node_moved", "node_id": "n1", "x": 10.0, "y": 20.0}, moved[0])
	assert.Empty(t, a.ofType(t, TypeNodeMoved))
}

func TestSession_MalformedJSON(t *testing.T) {
	hub := NewHub(nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	sa := openSession(hub, a, "b1", nil)
	openSession(hub, b, "b1", nil)
	a.reset()
	b.reset()

	sa.Handle(context.Background(), []byte(`{"type": "node_moved", `))

	msgs := a.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0]["type"])
	assert.Equal(t, "Invalid JSON", msgs[0]["message"])
	assert.Empty(t, b.messages(t))
	assert.Equal(t, StateOpen, sa.State())

	sa.Handle(context.Background(), []byte(`{"type":"node_deleted","node_id":"n1"}`))
	assert.Len(t, b.ofType(t, TypeNodeDeleted), 1)
}

func TestSession_UnknownType(t *testing.T) {
	hub := NewHub(nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	sa := openSession(hub, a, "b1", nil)
	openSession(hub, b, "b1", nil)
	a.reset()
	b.reset()

	sa.Handle(context.Background(), []byte(`{"type":"teleport"}`))

	msgs := a.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Unknown message type: teleport", msgs[0]["message"])
	assert.Empty(t, b.messages(t))
}

func TestSession_IncompleteEventsDropped(t *testing.T) {
	hub := NewHub(nil)
	store := &recordingStore{}
	a, b := newFakeConn("a"), newFakeConn("b")
	sa := openSession(hub, a, "b1", store)
	openSession(hub, b, "b1", store)
	a.reset()
	b.reset()

	frames := []string{
		`{"type":"node_moved","node_id":"n1","x":10}`,
		`{"type":"node_moved","x":1,"y":2}`,
		`{"type":"node_created"}`,
		`{"type":"node_created","node_data":{}}`,
		`{"type":"node_updated"}`,
		`{"type":"node_deleted","node_id":""}`,
		`{"type":"edge_created","edge_data":null}`,
		`{"type":"edge_deleted"}`,
		`{"type":"cursor_moved"}`,
	}
	for _, f := range frames {
		sa.Handle(context.Background(), []byte(f))
	}

	assert.Empty(t, a.messages(t))
	assert.Empty(t, b.messages(t))
	assert.Empty(t, store.updates)
	assert.Equal(t, float64(len(frames)), counterValue(t, hub.Metrics(), "branchboard_ws_dropped_events_total"))
}

func TestSession_MoveStillBroadcastWhenStoreFails(t *testing.T) {
	hub := NewHub(nil)
	store := &recordingStore{err: errors.New("db down")}
	a, b := newFakeConn("a"), newFakeConn("b")
	sa := openSession(hub, a, "b1", store)
	openSession(hub, b, "b1", store)

	sa.Handle(context.Background(), []byte(`{"type":"node_moved","node_id":"n1","x":0,"y":0}`))

	assert.Len(t, b.ofType(t, TypeNodeMoved), 1)
}

func TestSession_EchoesPayloads(t *testing.T) {
	hub := NewHub(nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	sa := openSession(hub, a, "b1", nil)
	openSession(hub, b, "b1", nil)
	b.reset()

	sa.Handle(context.Background(), []byte(`{"type":"node_updated","node_id":"n1","updates":{"title":"T"}}`))
	sa.Handle(context.Background(), []byte(`{"type":"node_updated","node_id":"n2"}`))
	sa.Handle(context.Background(), []byte(`{"type":"cursor_moved","cursor_data":{"x":1,"y":2,"user":"a"}}`))
	sa.Handle(context.Background(), []byte(`{"type":"edge_created","edge_data":{"id":"e1","source":"n1","target":"n2"}}`))

	msgs := b.messages(t)
	require.Len(t, msgs, 4)
	assert.Equal(t, map[string]interface{}{"title": "T"}, msgs[0]["updates"])
	assert.Equal(t, map[string]interface{}{}, msgs[1]["updates"])
	assert.Equal(t, map[string]interface{}{"x": 1.0, "y": 2.0, "user": "a"}, msgs[2]["cursor_data"])
	assert.Equal(t, "e1", msgs[3]["edge_data"].(map[string]interface{})["id"])
}

func TestSession_IgnoresFramesWhenNotOpen(t *testing.T) {
	hub := NewHub(nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	sa := NewSession(hub, a, "b1", nil, nil)
	openSession(hub, b, "b1", nil)

	sa.Handle(context.Background(), []byte(`{"type":"node_deleted","node_id":"n1"}`))
	assert.Empty(t, b.messages(t))
}

func TestSession_ServeLeavesOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	a, b := newFakeConn("a"), newFakeConn("b")
	openSession(hub, b, "b1", nil)

	recv := &fakeReceiver{frames: make(chan []byte, 2)}
	recv.frames <- []byte(`{"type":"node_deleted","node_id":"n1"}`)
	close(recv.frames)

	s := NewSession(hub, a, "b1", nil, nil)
	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), recv) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after disconnect")
	}

	assert.Equal(t, StateClosed, s.State())
	assert.True(t, a.isClosed())
	assert.Equal(t, 1, hub.RoomSize("b1"))
	assert.Len(t, b.ofType(t, TypeNodeDeleted), 1)
	left := b.ofType(t, TypeUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, 1.0, left[0]["user_count"])
}

func TestSession_ServeStopsOnContextCancel(t *testing.T) {
	hub := NewHub(nil)
	recv := &fakeReceiver{frames: make(chan []byte)}
	s := NewSession(hub, newFakeConn("a"), "b1", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, recv) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, 0, hub.RoomSize("b1"))
}
