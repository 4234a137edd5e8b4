package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"branchboard/backend/internal/state"
	"branchboard/backend/pkg/logger"
)

func init() {
	logger.Replace(zap.NewNop())
}

// fakeConn records every frame it is sent
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) setFail(v bool) {
	c.mu.Lock()
	c.fail = v
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// messages decodes every recorded frame into a generic map
func (c *fakeConn) messages(t *testing.T) []map[string]interface{} {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, m := range c.messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// fakeReceiver feeds queued frames to a session, then reports disconnect
type fakeReceiver struct {
	frames chan []byte
}

func (r *fakeReceiver) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-r.frames:
		if !ok {
			return nil, errors.New("peer closed")
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recordingStore captures position updates
type recordingStore struct {
	mu      sync.Mutex
	updates []recordedUpdate
	err     error
}

type recordedUpdate struct {
	boardID string
	nodeID  string
	upd     state.NodeUpdate
}

func (s *recordingStore) UpdateNode(ctx context.Context, boardID, nodeID string, upd state.NodeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, recordedUpdate{boardID: boardID, nodeID: nodeID, upd: upd})
	return s.err
}

// recordingPublisher captures relay publishes
type recordingPublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *recordingPublisher) Publish(ctx context.Context, boardID, excludeID string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, boardID+"|"+excludeID+"|"+string(payload))
	return nil
}

// counterValue reads a counter or gauge from the hub registry
func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}
