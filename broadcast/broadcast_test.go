package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/wfunc/pongserver/game"
	"github.com/wfunc/pongserver/network"
	"github.com/wfunc/pongserver/room"
	"github.com/wfunc/pongserver/session"
)

// mockConn counts delivered events per connection.
type mockConn struct {
	mutex  sync.Mutex
	events []string
	fail   bool
}

func (c *mockConn) Send(event string, data interface{}) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.fail {
		return errors.New("connection gone")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *mockConn) ReadEvent() (*network.Event, error)         { return nil, nil }
func (c *mockConn) CloseWithCode(code int, reason string) error { return nil }
func (c *mockConn) Close() error                                { return nil }
func (c *mockConn) RemoteAddr() net.Addr                        { return nil }

func (c *mockConn) received() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

func setup(t *testing.T) (*RoomDispatcher, *room.Directory, *session.Registry) {
	t.Helper()
	rooms := room.NewDirectory()
	sessions := session.NewRegistry()
	return NewRoomDispatcher(rooms, sessions), rooms, sessions
}

func addSession(t *testing.T, sessions *session.Registry, id string, userID int64, name string) *mockConn {
	t.Helper()
	conn := &mockConn{}
	sessions.Add(session.NewSession(id, conn))
	if _, _, err := sessions.Register(id, userID, name); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return conn
}

func TestBroadcastToRoom(t *testing.T) {
	d, rooms, sessions := setup(t)

	c1 := addSession(t, sessions, "sess1", 100, "alice")
	c2 := addSession(t, sessions, "sess2", 200, "bob")
	c3 := addSession(t, sessions, "sess3", 300, "carol")

	r := rooms.CreateRoom("sess1", 100, "alice", game.DifficultyMedium)
	rooms.AddPlayer(r.ID, "sess2", 200, "bob")

	if err := d.BroadcastToRoom(r.ID, "gameStarted", nil); err != nil {
		t.Fatalf("BroadcastToRoom failed: %v", err)
	}

	if got := c1.received(); len(got) != 1 || got[0] != "gameStarted" {
		t.Errorf("Member sess1 expected gameStarted, got %v", got)
	}
	if got := c2.received(); len(got) != 1 || got[0] != "gameStarted" {
		t.Errorf("Member sess2 expected gameStarted, got %v", got)
	}
	if got := c3.received(); len(got) != 0 {
		t.Errorf("Non-member must receive nothing, got %v", got)
	}
}

func TestBroadcastToRoom_UnknownRoom(t *testing.T) {
	d, _, _ := setup(t)
	if err := d.BroadcastToRoom("nonexistent", "gameStarted", nil); err != room.ErrRoomNotFound {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestBroadcastToRoom_SkipsDeadConnections(t *testing.T) {
	d, rooms, sessions := setup(t)

	dead := addSession(t, sessions, "sess1", 100, "alice")
	dead.fail = true
	live := addSession(t, sessions, "sess2", 200, "bob")

	r := rooms.CreateRoom("sess1", 100, "alice", game.DifficultyMedium)
	rooms.AddPlayer(r.ID, "sess2", 200, "bob")

	if err := d.BroadcastToRoom(r.ID, "roomUpdated", nil); err != nil {
		t.Fatalf("One dead connection must not fail the broadcast: %v", err)
	}
	if got := live.received(); len(got) != 1 {
		t.Errorf("Live member should still receive, got %v", got)
	}
}

func TestSendToSession(t *testing.T) {
	d, _, sessions := setup(t)
	conn := addSession(t, sessions, "sess1", 100, "alice")

	if err := d.SendToSession("sess1", "gameInvite", map[string]string{"from": "bob"}); err != nil {
		t.Fatalf("SendToSession failed: %v", err)
	}
	if got := conn.received(); len(got) != 1 || got[0] != "gameInvite" {
		t.Errorf("Expected gameInvite delivered, got %v", got)
	}

	if err := d.SendToSession("ghost", "gameInvite", nil); err == nil {
		t.Error("Unicast to unknown session should fail")
	}
}

func TestBroadcastToOthers(t *testing.T) {
	d, _, sessions := setup(t)

	actor := addSession(t, sessions, "sess1", 100, "alice")
	other1 := addSession(t, sessions, "sess2", 200, "bob")
	other2 := addSession(t, sessions, "sess3", 300, "carol")

	d.BroadcastToOthers("sess1", "presence", map[string]string{"displayName": "alice", "status": "online"})

	if got := actor.received(); len(got) != 0 {
		t.Errorf("Actor must not see its own presence echo, got %v", got)
	}
	for i, c := range []*mockConn{other1, other2} {
		if got := c.received(); len(got) != 1 || got[0] != "presence" {
			t.Errorf("Other %d expected presence, got %v", i, got)
		}
	}
}
