// Package delivery implements the fan-out primitives of the routing core:
// broadcast, room-scoped broadcast, per-user and per-session sends. Frames
// are marshalled once and fanned out under the registry lock.
package delivery

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store"
)

// GlobalRoom is the implicit room every authenticated connection belongs to.
const GlobalRoom = "global"

// Engine fans frames out to live connections. Delivery is best effort: a
// routing miss or a full outbound queue drops the frame for that connection
// and is logged, never retried.
type Engine struct {
	reg   *registry.Registry
	rooms store.RoomStore
	log   zerolog.Logger
}

// New creates a delivery engine over the given registry. rooms resolves
// persisted membership for room-scoped broadcasts.
func New(reg *registry.Registry, rooms store.RoomStore, logger zerolog.Logger) *Engine {
	return &Engine{reg: reg, rooms: rooms, log: logger}
}

// Broadcast sends a frame to every authenticated connection.
func (e *Engine) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Msg("broadcast: marshal failed")
		return
	}

	e.reg.ForEach(func(c registry.Conn) {
		if !c.Authenticated {
			return
		}
		if !c.TrySend(data) {
			e.log.Debug().Str("conn_id", c.ID).Msg("broadcast: send dropped")
		}
	})
}

// BroadcastToRoom sends a frame to every connection that should receive room
// traffic: users with persisted membership plus connections currently viewing
// the room, minus excludeUserID (usually the sender, already echoed
// directly). If membership cannot be resolved, delivery degrades to viewers
// only rather than failing the whole fan-out.
func (e *Engine) BroadcastToRoom(ctx context.Context, roomID string, payload any, excludeUserID string) {
	if roomID == "" || roomID == GlobalRoom {
		e.broadcastExcluding(payload, excludeUserID)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Str("room_id", roomID).Msg("room broadcast: marshal failed")
		return
	}

	members := map[string]bool{}
	ids, err := e.rooms.ListRoomMemberIDs(ctx, roomID)
	if err != nil {
		e.log.Warn().Err(err).Str("room_id", roomID).
			Msg("room broadcast: membership lookup failed, delivering to viewers only")
	} else {
		for _, id := range ids {
			members[id] = true
		}
	}

	e.reg.ForEach(func(c registry.Conn) {
		if !c.Authenticated || c.UserID == excludeUserID {
			return
		}
		if !members[c.UserID] && c.CurrentRoom != roomID {
			return
		}
		if !c.TrySend(data) {
			e.log.Debug().Str("conn_id", c.ID).Str("room_id", roomID).Msg("room broadcast: send dropped")
		}
	})
}

func (e *Engine) broadcastExcluding(payload any, excludeUserID string) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Msg("broadcast: marshal failed")
		return
	}

	e.reg.ForEach(func(c registry.Conn) {
		if !c.Authenticated || c.UserID == excludeUserID {
			return
		}
		if !c.TrySend(data) {
			e.log.Debug().Str("conn_id", c.ID).Msg("broadcast: send dropped")
		}
	})
}

// SendToUser sends a frame to every authenticated connection of one user.
// Returns true if at least one connection received it.
func (e *Engine) SendToUser(userID string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("send to user: marshal failed")
		return false
	}

	delivered := false
	e.reg.ForEach(func(c registry.Conn) {
		if !c.Authenticated || c.UserID != userID {
			return
		}
		if c.TrySend(data) {
			delivered = true
		}
	})
	if !delivered {
		e.log.Debug().Str("user_id", userID).Msg("send to user: no live connection")
	}
	return delivered
}

// SendToSession sends a frame to the connection holding the given session id.
func (e *Engine) SendToSession(sessionID string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Str("session_id", sessionID).Msg("send to session: marshal failed")
		return false
	}

	delivered := false
	e.reg.ForEach(func(c registry.Conn) {
		if c.SessionID != sessionID {
			return
		}
		if c.TrySend(data) {
			delivered = true
		}
	})
	if !delivered {
		e.log.Debug().Str("session_id", sessionID).Msg("send to session: no live connection")
	}
	return delivered
}
