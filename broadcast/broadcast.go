package broadcast

import (
	"github.com/wfunc/pongserver/room"
	"github.com/wfunc/pongserver/session"
)

// Dispatcher delivers room-scoped broadcasts and identity-scoped
// unicasts over the persistent channel.
type Dispatcher interface {
	BroadcastToRoom(roomID string, event string, data interface{}) error
	SendToSession(sessionID string, event string, data interface{}) error
	BroadcastToOthers(excludeSessionID string, event string, data interface{})
}

// RoomDispatcher resolves rooms and sessions through their owning
// stores; it holds no connection state of its own.
type RoomDispatcher struct {
	rooms    *room.Directory
	sessions *session.Registry
}

func NewRoomDispatcher(rooms *room.Directory, sessions *session.Registry) *RoomDispatcher {
	return &RoomDispatcher{
		rooms:    rooms,
		sessions: sessions,
	}
}

// BroadcastToRoom sends to every connection currently joined to the
// room. A failed send skips that player; the disconnect path cleans up.
func (d *RoomDispatcher) BroadcastToRoom(roomID string, event string, data interface{}) error {
	r, ok := d.rooms.Get(roomID)
	if !ok {
		return room.ErrRoomNotFound
	}

	for _, p := range r.Players() {
		sess, ok := d.sessions.GetByConn(p.SessionID)
		if !ok {
			continue
		}
		if err := sess.Send(event, data); err != nil {
			continue
		}
	}
	return nil
}

// SendToSession unicasts to one connection handle.
func (d *RoomDispatcher) SendToSession(sessionID string, event string, data interface{}) error {
	sess, ok := d.sessions.GetByConn(sessionID)
	if !ok {
		return session.ErrNotAuthenticated
	}
	return sess.Send(event, data)
}

// BroadcastToOthers sends to every live connection except the acting
// one. Presence updates use this so the actor never sees an echo.
func (d *RoomDispatcher) BroadcastToOthers(excludeSessionID string, event string, data interface{}) {
	for _, sess := range d.sessions.Others(excludeSessionID) {
		sess.Send(event, data)
	}
}
