package collab

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"branchboard/backend/pkg/logger"
)

// UserInfo is the optional presence metadata a client connects with
type UserInfo struct {
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// Member describes one connection in a room
type Member struct {
	ConnectionID string    `json:"connection_id"`
	User         *UserInfo `json:"user,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
}

type member struct {
	conn     Conn
	user     *UserInfo
	joinedAt time.Time
}

// room is the set of connections of one board. mu serializes structural
// changes; dead is set once the room has been emptied and must not be
// joined again.
type room struct {
	mu      sync.Mutex
	members map[string]*member
	dead    atomic.Bool
}

func (r *room) snapshot(excludeID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]Conn, 0, len(r.members))
	for id, m := range r.members {
		if id == excludeID {
			continue
		}
		conns = append(conns, m.conn)
	}
	return conns
}

// Hub routes events between the connections of each board.
//
// Rooms are created on first join and pruned as soon as they empty. Distinct
// rooms never contend on the same lock once they exist.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	boards map[string]string // connection id -> board id

	publisher Publisher
	metrics   *Metrics
	logger    *zap.Logger
}

// NewHub creates an empty hub. A nil metrics gets a private set.
func NewHub(metrics *Metrics) *Hub {
	if metrics == nil {
		metrics = NewMetrics("branchboard")
	}
	return &Hub{
		rooms:   make(map[string]*room),
		boards:  make(map[string]string),
		metrics: metrics,
		logger:  logger.Get(),
	}
}

// Metrics returns the hub's instruments
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// SetPublisher attaches the cross-instance relay. Call before serving.
func (h *Hub) SetPublisher(p Publisher) {
	h.mu.Lock()
	h.publisher = p
	h.mu.Unlock()
}

// Join admits conn into boardID's room and tells the other members. A
// connection already in a room leaves it first. It returns the new room size.
func (h *Hub) Join(conn Conn, boardID string, user *UserInfo) int {
	h.mu.RLock()
	current, joined := h.boards[conn.ID()]
	h.mu.RUnlock()
	if joined {
		if current == boardID {
			return h.RoomSize(boardID)
		}
		h.Leave(conn)
	}

	var size int
	for {
		r := h.roomFor(boardID)

		r.mu.Lock()
		if r.dead.Load() {
			// pruned between lookup and lock; the next lookup replaces it
			r.mu.Unlock()
			continue
		}
		_, existed := r.members[conn.ID()]
		r.members[conn.ID()] = &member{conn: conn, user: user, joinedAt: time.Now()}
		size = len(r.members)

		// the board entry is visible before any broadcast can see the member,
		// so an eviction racing this join always finds it
		h.mu.Lock()
		h.boards[conn.ID()] = boardID
		h.mu.Unlock()
		if !existed {
			h.metrics.Connections.Inc()
		}
		r.mu.Unlock()
		break
	}

	h.logger.Info("Connection joined board",
		zap.String("board_id", boardID),
		zap.String("connection_id", conn.ID()),
		zap.Int("room_size", size),
	)

	h.deliverEvent(boardID, UserJoined{BoardID: boardID, UserCount: size, User: user}, conn.ID())
	return size
}

// Leave removes conn from its room and tells the remaining members. Leaving
// twice is a no-op.
func (h *Hub) Leave(conn Conn) {
	h.mu.Lock()
	boardID, ok := h.boards[conn.ID()]
	if ok {
		delete(h.boards, conn.ID())
	}
	r := h.rooms[boardID]
	h.mu.Unlock()
	if !ok || r == nil {
		return
	}

	r.mu.Lock()
	if _, present := r.members[conn.ID()]; !present {
		r.mu.Unlock()
		return
	}
	delete(r.members, conn.ID())
	size := len(r.members)
	if size == 0 {
		r.dead.Store(true)
	}
	r.mu.Unlock()

	if size == 0 {
		h.mu.Lock()
		if h.rooms[boardID] == r {
			delete(h.rooms, boardID)
			h.metrics.Rooms.Dec()
		}
		h.mu.Unlock()
	}

	h.metrics.Connections.Dec()
	h.logger.Info("Connection left board",
		zap.String("board_id", boardID),
		zap.String("connection_id", conn.ID()),
		zap.Int("room_size", size),
	)

	if size > 0 {
		h.deliverEvent(boardID, UserLeft{BoardID: boardID, UserCount: size}, "")
	}
}

// RoomSize returns the number of local connections on boardID
func (h *Hub) RoomSize(boardID string) int {
	h.mu.RLock()
	r := h.rooms[boardID]
	h.mu.RUnlock()
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Rooms lists the boards that currently have connections
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Members lists the connections of boardID in join order
func (h *Hub) Members(boardID string) []Member {
	h.mu.RLock()
	r := h.rooms[boardID]
	h.mu.RUnlock()
	if r == nil {
		return []Member{}
	}

	r.mu.Lock()
	members := make([]Member, 0, len(r.members))
	for id, m := range r.members {
		members = append(members, Member{ConnectionID: id, User: m.user, JoinedAt: m.joinedAt})
	}
	r.mu.Unlock()

	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ConnectionID < members[j].ConnectionID
	})
	return members
}

// Close disconnects every connection and empties the hub
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*room)
	h.boards = make(map[string]string)
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.dead.Store(true)
		for _, m := range r.members {
			m.conn.Close()
			h.metrics.Connections.Dec()
		}
		r.members = map[string]*member{}
		r.mu.Unlock()
		h.metrics.Rooms.Dec()
	}
	h.logger.Info("Hub closed", zap.Int("rooms", len(rooms)))
}

// roomFor returns the live room of boardID, creating it when absent or dead
func (h *Hub) roomFor(boardID string) *room {
	h.mu.RLock()
	r := h.rooms[boardID]
	h.mu.RUnlock()
	if r != nil && !r.dead.Load() {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r = h.rooms[boardID]
	if r != nil && !r.dead.Load() {
		return r
	}
	if r == nil {
		h.metrics.Rooms.Inc()
	}
	r = &room{members: make(map[string]*member)}
	h.rooms[boardID] = r
	return r
}
