package server

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/pongserver/config"
	"github.com/wfunc/pongserver/logger"
	"github.com/wfunc/pongserver/network"
	"github.com/wfunc/pongserver/room"
	"github.com/wfunc/pongserver/session"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

type sentEvent struct {
	Event string
	Data  interface{}
}

// mockConn records outbound events and close calls per connection.
type mockConn struct {
	mutex     sync.Mutex
	events    []sentEvent
	closed    bool
	closeCode int
}

func (c *mockConn) Send(event string, data interface{}) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.events = append(c.events, sentEvent{Event: event, Data: data})
	return nil
}

func (c *mockConn) ReadEvent() (*network.Event, error) { return nil, nil }

func (c *mockConn) CloseWithCode(code int, reason string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	c.closeCode = code
	return nil
}

func (c *mockConn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) RemoteAddr() net.Addr { return nil }

func (c *mockConn) received() []sentEvent {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]sentEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *mockConn) count(event string) int {
	n := 0
	for _, e := range c.received() {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (c *mockConn) last(event string) (sentEvent, bool) {
	var out sentEvent
	found := false
	for _, e := range c.received() {
		if e.Event == event {
			out = e
			found = true
		}
	}
	return out, found
}

func newTestServer(t *testing.T) *GameServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.HTTPAddress = "127.0.0.1:0"
	cfg.Server.MetricsAddress = "127.0.0.1:0"
	cfg.Game.TickRate = 60
	cfg.Game.CountdownSeconds = 3
	cfg.Game.WinScore = 5
	cfg.Game.InviteTTL = time.Hour
	cfg.Game.InviteCooldown = 30 * time.Second

	srv := NewGameServer(cfg, nil)
	t.Cleanup(srv.Shutdown)
	return srv
}

func connect(t *testing.T, srv *GameServer, id string) (*session.Session, *mockConn) {
	t.Helper()
	conn := &mockConn{}
	sess := session.NewSession(id, conn)
	srv.sessions.Add(sess)
	return sess, conn
}

func send(t *testing.T, srv *GameServer, sess *session.Session, event string, payload interface{}) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		raw = b
	}
	srv.dispatch(sess, &network.Event{Event: event, Data: raw})
}

func authenticate(t *testing.T, srv *GameServer, sess *session.Session, name string, userID int64) {
	t.Helper()
	send(t, srv, sess, network.EvtAuthenticate, map[string]interface{}{
		"displayName": name,
		"userId":      userID,
	})
}

func createRoom(t *testing.T, srv *GameServer, sess *session.Session, conn *mockConn) string {
	t.Helper()
	send(t, srv, sess, network.EvtCreateRoom, map[string]string{"difficulty": "MEDIUM"})
	evt, ok := conn.last(network.EvtRoomCreated)
	if !ok {
		t.Fatal("Expected roomCreated reply")
	}
	return evt.Data.(room.Info).ID
}

func TestDispatch_RequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)
	sess, conn := connect(t, srv, "sess1")

	send(t, srv, sess, network.EvtCreateRoom, map[string]string{"difficulty": "MEDIUM"})

	evt, ok := conn.last(network.EvtError)
	if !ok {
		t.Fatal("Unauthenticated request should get an error reply")
	}
	if msg := evt.Data.(errorBody).Message; msg != "authentication required" {
		t.Errorf("Expected authentication required, got %q", msg)
	}
	if conn.count(network.EvtRoomCreated) != 0 {
		t.Error("Unauthenticated request must not create a room")
	}
}

func TestDispatch_UnknownEvent(t *testing.T) {
	srv := newTestServer(t)
	sess, conn := connect(t, srv, "sess1")
	authenticate(t, srv, sess, "alice", 100)

	send(t, srv, sess, "teleport", nil)

	if _, ok := conn.last(network.EvtError); !ok {
		t.Error("Unknown event should get an error reply")
	}
}

func TestAuthenticate_EvictsStaleSession(t *testing.T) {
	srv := newTestServer(t)

	stale, staleConn := connect(t, srv, "sess1")
	authenticate(t, srv, stale, "Alice", 100)
	roomID := createRoom(t, srv, stale, staleConn)

	fresh, freshConn := connect(t, srv, "sess2")
	authenticate(t, srv, fresh, "alice", 100)

	if !staleConn.closed || staleConn.closeCode != network.CloseEvicted {
		t.Errorf("Stale connection should be closed with code %d, got closed=%v code=%d",
			network.CloseEvicted, staleConn.closed, staleConn.closeCode)
	}
	if _, ok := srv.sessions.GetByConn("sess1"); ok {
		t.Error("Evicted session must leave the registry")
	}
	if _, ok := srv.rooms.Get(roomID); ok {
		t.Error("Evicted player's solo room should be deleted")
	}
	if _, ok := freshConn.last(network.EvtAuthenticated); !ok {
		t.Error("Fresh session should be authenticated")
	}
	if s, ok := srv.sessions.GetByDisplayName("alice"); !ok || s.GetID() != "sess2" {
		t.Error("Display name should resolve to the fresh session")
	}
}

func TestJoinRoom_ReplaysReadinessToLateJoiner(t *testing.T) {
	srv := newTestServer(t)

	host, hostConn := connect(t, srv, "sess1")
	authenticate(t, srv, host, "alice", 100)
	roomID := createRoom(t, srv, host, hostConn)

	send(t, srv, host, network.EvtPlayerReady, map[string]string{"roomId": roomID})
	if hostConn.count(network.EvtPlayerReadyOut) != 1 {
		t.Fatal("Host should see their own ready broadcast")
	}

	guest, guestConn := connect(t, srv, "sess2")
	authenticate(t, srv, guest, "bob", 200)
	send(t, srv, guest, network.EvtJoinRoom, map[string]string{"roomId": roomID})

	if _, ok := guestConn.last(network.EvtRoomUpdated); !ok {
		t.Fatal("Joiner should get a roomUpdated reply")
	}
	if guestConn.count(network.EvtPlayerJoined) != 1 {
		t.Error("Joiner should see the playerJoined broadcast")
	}

	// The host's earlier ready is replayed to the newcomer only.
	evt, ok := guestConn.last(network.EvtPlayerReadyOut)
	if !ok {
		t.Fatal("Late joiner should receive a readiness replay")
	}
	payload := evt.Data.(map[string]interface{})
	if payload["displayName"] != "alice" {
		t.Errorf("Replay should carry the ready player's name, got %v", payload["displayName"])
	}
	if hostConn.count(network.EvtPlayerReadyOut) != 1 {
		t.Error("Replay must be unicast; existing members see no duplicate")
	}
}

func TestLeaveRoom_NotifiesRemainingPlayer(t *testing.T) {
	srv := newTestServer(t)

	host, hostConn := connect(t, srv, "sess1")
	authenticate(t, srv, host, "alice", 100)
	roomID := createRoom(t, srv, host, hostConn)

	guest, _ := connect(t, srv, "sess2")
	authenticate(t, srv, guest, "bob", 200)
	send(t, srv, guest, network.EvtJoinRoom, map[string]string{"roomId": roomID})

	send(t, srv, guest, network.EvtLeaveRoom, map[string]string{"roomId": roomID})

	evt, ok := hostConn.last(network.EvtPlayerLeft)
	if !ok {
		t.Fatal("Remaining player should be told who left")
	}
	if payload := evt.Data.(map[string]interface{}); payload["displayName"] != "bob" {
		t.Errorf("Expected bob in playerLeft, got %v", payload["displayName"])
	}
	if _, ok := hostConn.last(network.EvtRoomUpdated); !ok {
		t.Error("Remaining player should get the updated room state")
	}

	if guest.Room() != "" {
		t.Error("Leaver's session should no longer track the room")
	}
	r, ok := srv.rooms.Get(roomID)
	if !ok {
		t.Fatal("Room with a remaining player must survive")
	}
	if r.HostDisplayName() != "alice" {
		t.Errorf("Expected alice still hosting, got %s", r.HostDisplayName())
	}
}

func TestDisconnect_AnnouncesOffline(t *testing.T) {
	srv := newTestServer(t)

	alice, aliceConn := connect(t, srv, "sess1")
	authenticate(t, srv, alice, "alice", 100)

	bob, _ := connect(t, srv, "sess2")
	authenticate(t, srv, bob, "bob", 200)

	srv.handleDisconnect(bob)

	evt, ok := aliceConn.last(network.EvtPresence)
	if !ok {
		t.Fatal("Remaining player should see a presence update")
	}
	payload := evt.Data.(map[string]interface{})
	if payload["displayName"] != "bob" || payload["online"] != false {
		t.Errorf("Expected bob offline, got %v", payload)
	}
	if _, ok := srv.sessions.GetByConn("sess2"); ok {
		t.Error("Disconnected session must leave the registry")
	}
}
