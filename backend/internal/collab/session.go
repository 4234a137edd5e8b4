package collab

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"branchboard/backend/internal/state"
	apperrors "branchboard/backend/pkg/errors"
	"branchboard/backend/pkg/logger"
)

// SessionState is the lifecycle of one client channel
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// PositionStore persists node moves made on the canvas
type PositionStore interface {
	UpdateNode(ctx context.Context, boardID, nodeID string, upd state.NodeUpdate) error
}

// Session drives one connection on one board: it joins the room, applies
// inbound events and re-broadcasts them to the other members.
//
// Frames of one session are handled one at a time, so a sender's events
// reach every recipient in the order they were sent.
type Session struct {
	hub     *Hub
	conn    Conn
	boardID string
	user    *UserInfo
	store   PositionStore
	state   atomic.Int32
	logger  *zap.Logger
}

// NewSession creates a session in the connecting state. store may be nil, in
// which case moves are relayed without being persisted.
func NewSession(hub *Hub, conn Conn, boardID string, user *UserInfo, store PositionStore) *Session {
	return &Session{
		hub:     hub,
		conn:    conn,
		boardID: boardID,
		user:    user,
		store:   store,
		logger: logger.Get().With(
			zap.String("board_id", boardID),
			zap.String("connection_id", conn.ID()),
		),
	}
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Open joins the board's room and returns the room size
func (s *Session) Open() int {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return s.hub.RoomSize(s.boardID)
	}
	return s.hub.Join(s.conn, s.boardID, s.user)
}

// Close leaves the room and releases the connection. It is idempotent.
func (s *Session) Close() {
	if SessionState(s.state.Swap(int32(StateClosed))) == StateClosed {
		return
	}
	s.hub.Leave(s.conn)
	s.conn.Close()
}

// Serve opens the session and processes frames from recv until the peer
// disconnects or ctx ends. Malformed frames never end the session.
func (s *Session) Serve(ctx context.Context, recv Receiver) error {
	s.Open()
	defer s.Close()

	for {
		raw, err := recv.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("Session receive ended", zap.Error(err))
			return nil
		}
		s.Handle(ctx, raw)
	}
}

// Handle processes one inbound frame
func (s *Session) Handle(ctx context.Context, raw []byte) {
	if s.State() != StateOpen {
		return
	}

	ev, err := Decode(raw)
	if err != nil {
		s.reject(err)
		return
	}
	s.hub.metrics.Inbound.WithLabelValues(metricType(ev)).Inc()

	switch e := ev.(type) {
	case Unknown:
		s.reply(Error{Message: "Unknown message type: " + e.Kind})
		return

	case NodeMoved:
		if s.store != nil {
			if err := s.store.UpdateNode(ctx, s.boardID, e.NodeID, state.PositionUpdate(e.X, e.Y)); err != nil {
				// the move is still relayed; the canvas is the source of truth
				s.logger.Warn("Failed to persist node position",
					zap.String("node_id", e.NodeID),
					zap.Error(err),
				)
			}
		}
	}

	if err := s.hub.Broadcast(ctx, s.boardID, ev, s.conn.ID()); err != nil {
		s.logger.Error("Failed to broadcast event", zap.String("type", ev.Type()), zap.Error(err))
	}
}

func (s *Session) reject(err error) {
	if errors.Is(err, ErrIncomplete) {
		s.hub.metrics.Dropped.Inc()
		s.logger.Debug("Dropping incomplete event")
		return
	}

	s.hub.metrics.Malformed.Inc()
	var malformed *apperrors.ErrMalformedInput
	if errors.As(err, &malformed) {
		s.reply(Error{Message: malformed.Reason})
		return
	}
	s.reply(Error{Message: err.Error()})
}

func (s *Session) reply(ev Event) {
	if err := s.hub.SendTo(s.conn, ev); err != nil {
		s.logger.Error("Failed to reply", zap.String("type", ev.Type()), zap.Error(err))
	}
}

// metricType keeps label cardinality bounded for unknown types
func metricType(ev Event) string {
	if _, ok := ev.(Unknown); ok {
		return "unknown"
	}
	return ev.Type()
}
