package collab

import (
	"context"

	"go.uber.org/zap"
)

// Publisher forwards frames to hubs running in other processes
type Publisher interface {
	Publish(ctx context.Context, boardID, excludeID string, payload []byte) error
}

// Broadcast delivers ev to every connection of boardID except excludeID
// ("" excludes nobody) and forwards it to the relay when one is attached.
// Each recipient is tried independently; recipients whose send fails are
// evicted. Only an encoding failure is returned.
func (h *Hub) Broadcast(ctx context.Context, boardID string, ev Event, excludeID string) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}

	h.deliver(boardID, payload, excludeID)

	h.mu.RLock()
	publisher := h.publisher
	h.mu.RUnlock()
	if publisher != nil {
		if err := publisher.Publish(ctx, boardID, excludeID, payload); err != nil {
			h.logger.Warn("Relay publish failed",
				zap.String("board_id", boardID),
				zap.String("type", ev.Type()),
				zap.Error(err),
			)
		} else {
			h.metrics.RelayPublished.Inc()
		}
	}
	return nil
}

// SendTo delivers ev to conn alone, evicting it if the send fails
func (h *Hub) SendTo(conn Conn, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}

	if err := conn.Send(payload); err != nil {
		h.metrics.Failed.Inc()
		h.evict(conn, err)
		return nil
	}
	h.metrics.Delivered.Inc()
	return nil
}

// DeliverRemote hands a frame published by another instance to the local
// members of boardID. It is never published again.
func (h *Hub) DeliverRemote(boardID, excludeID string, payload []byte) {
	h.metrics.RelayReceived.Inc()
	h.deliver(boardID, payload, excludeID)
}

// deliverEvent is a local-only broadcast used for presence changes, whose
// counts are per instance
func (h *Hub) deliverEvent(boardID string, ev Event, excludeID string) {
	payload, err := Encode(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("type", ev.Type()), zap.Error(err))
		return
	}
	h.deliver(boardID, payload, excludeID)
}

func (h *Hub) deliver(boardID string, payload []byte, excludeID string) {
	h.mu.RLock()
	r := h.rooms[boardID]
	h.mu.RUnlock()
	if r == nil {
		return
	}

	var failed []Conn
	for _, conn := range r.snapshot(excludeID) {
		if err := conn.Send(payload); err != nil {
			h.metrics.Failed.Inc()
			h.logger.Warn("Send failed",
				zap.String("board_id", boardID),
				zap.String("connection_id", conn.ID()),
				zap.Error(err),
			)
			failed = append(failed, conn)
			continue
		}
		h.metrics.Delivered.Inc()
	}

	for _, conn := range failed {
		h.evict(conn, nil)
	}
}

// evict removes a connection whose send failed. The eviction is reported
// through logs and metrics, never to the caller.
func (h *Hub) evict(conn Conn, cause error) {
	h.mu.RLock()
	_, member := h.boards[conn.ID()]
	h.mu.RUnlock()
	if !member {
		conn.Close()
		return
	}

	h.metrics.Evicted.Inc()
	fields := []zap.Field{zap.String("connection_id", conn.ID())}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	h.logger.Warn("Evicting connection", fields...)

	h.Leave(conn)
	conn.Close()
}
