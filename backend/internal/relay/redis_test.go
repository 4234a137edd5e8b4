package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"branchboard/backend/internal/collab"
	"branchboard/backend/pkg/logger"
)

func init() {
	logger.Replace(zap.NewNop())
}

type delivery struct {
	boardID string
	exclude string
	payload string
}

type recordingDeliverer struct {
	mu   sync.Mutex
	got  []delivery
	seen chan struct{}
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{seen: make(chan struct{}, 16)}
}

func (d *recordingDeliverer) DeliverRemote(boardID, excludeID string, payload []byte) {
	d.mu.Lock()
	d.got = append(d.got, delivery{boardID: boardID, exclude: excludeID, payload: string(payload)})
	d.mu.Unlock()
	d.seen <- struct{}{}
}

func setupRelay(t *testing.T, s *miniredis.Miniredis, instance string) *RedisRelay {
	t.Helper()
	r, err := NewRedisRelay("redis://"+s.Addr(), instance)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func listen(t *testing.T, r *RedisRelay, d Deliverer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l, err := r.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx, d)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNewRedisRelay_BadURL(t *testing.T) {
	_, err := NewRedisRelay("not a url", "i1")
	assert.Error(t, err)
}

func TestRedisRelay_DeliversToOtherInstances(t *testing.T) {
	s := miniredis.RunT(t)
	a := setupRelay(t, s, "instance-a")
	b := setupRelay(t, s, "instance-b")

	gotA := newRecordingDeliverer()
	gotB := newRecordingDeliverer()
	listen(t, a, gotA)
	listen(t, b, gotB)

	payload := []byte(`{"type":"node_deleted","node_id":"n1"}`)
	require.NoError(t, a.Publish(context.Background(), "board-1", "conn-a", payload))

	select {
	case <-gotB.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("instance b never received the envelope")
	}

	gotB.mu.Lock()
	require.Len(t, gotB.got, 1)
	assert.Equal(t, delivery{boardID: "board-1", exclude: "conn-a", payload: string(payload)}, gotB.got[0])
	gotB.mu.Unlock()

	// the origin never delivers its own frames twice
	select {
	case <-gotA.seen:
		t.Fatal("origin received its own envelope")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisRelay_HubToHub(t *testing.T) {
	s := miniredis.RunT(t)
	relayA := setupRelay(t, s, "a")
	relayB := setupRelay(t, s, "b")

	hubA := collab.NewHub(nil)
	hubB := collab.NewHub(nil)
	hubA.SetPublisher(relayA)
	listen(t, relayB, hubB)

	remote := newRemoteConn("remote")
	hubB.Join(remote, "b1", nil)

	require.NoError(t, hubA.Broadcast(context.Background(), "b1", collab.NodeDeleted{NodeID: "n7"}, ""))

	select {
	case frame := <-remote.frames:
		assert.JSONEq(t, `{"type":"node_deleted","node_id":"n7"}`, string(frame))
	case <-time.After(2 * time.Second):
		t.Fatal("remote hub never delivered the frame")
	}
}

func TestListener_IgnoresGarbage(t *testing.T) {
	s := miniredis.RunT(t)
	r := setupRelay(t, s, "a")
	got := newRecordingDeliverer()
	listen(t, r, got)

	s.Publish("branchboard:room:b1", "not json")
	require.NoError(t, setupRelay(t, s, "b").Publish(context.Background(), "b1", "", []byte(`{"type":"x"}`)))

	select {
	case <-got.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("valid envelope after garbage was not delivered")
	}
	got.mu.Lock()
	assert.Len(t, got.got, 1)
	got.mu.Unlock()
}

// remoteConn is a collab.Conn that exposes its frames on a channel
type remoteConn struct {
	id     string
	frames chan []byte
}

func newRemoteConn(id string) *remoteConn {
	return &remoteConn{id: id, frames: make(chan []byte, 8)}
}

func (c *remoteConn) ID() string { return c.id }

func (c *remoteConn) Send(payload []byte) error {
	c.frames <- payload
	return nil
}

func (c *remoteConn) Close() error { return nil }
