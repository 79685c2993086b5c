package match

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/pongserver/game"
	"github.com/wfunc/pongserver/logger"
	"github.com/wfunc/pongserver/models"
	"github.com/wfunc/pongserver/room"
	"github.com/wfunc/pongserver/state"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

type capturedEvent struct {
	RoomID string
	Event  string
	Data   interface{}
}

// mockDispatcher records every broadcast in order.
type mockDispatcher struct {
	mutex  sync.Mutex
	events []capturedEvent
}

func (d *mockDispatcher) BroadcastToRoom(roomID string, event string, data interface{}) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.events = append(d.events, capturedEvent{RoomID: roomID, Event: event, Data: data})
	return nil
}

func (d *mockDispatcher) SendToSession(sessionID string, event string, data interface{}) error {
	return nil
}

func (d *mockDispatcher) BroadcastToOthers(excludeSessionID string, event string, data interface{}) {
}

func (d *mockDispatcher) captured() []capturedEvent {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]capturedEvent, len(d.events))
	copy(out, d.events)
	return out
}

func (d *mockDispatcher) count(event string) int {
	n := 0
	for _, e := range d.captured() {
		if e.Event == event {
			n++
		}
	}
	return n
}

// waitFor polls until at least one event with the given name arrived.
func (d *mockDispatcher) waitFor(t *testing.T, event string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.count(event) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Event %q did not arrive within %s", event, timeout)
}

type mockRecorder struct {
	records chan models.MatchRecord
}

func (r *mockRecorder) RecordMatch(record models.MatchRecord) error {
	r.records <- record
	return nil
}

func readyRoom(t *testing.T, rooms *room.Directory) *room.Room {
	t.Helper()
	r := rooms.CreateRoom("sess1", 100, "alice", game.DifficultyMedium)
	if _, err := rooms.AddPlayer(r.ID, "sess2", 200, "bob"); err != nil {
		t.Fatalf("AddPlayer failed: %v", err)
	}
	rooms.SetReady(r.ID, "sess1")
	rooms.SetReady(r.ID, "sess2")
	return r
}

func TestOrchestrator_CountdownThenStart(t *testing.T) {
	rooms := room.NewDirectory()
	dispatcher := &mockDispatcher{}
	o := NewOrchestrator(rooms, dispatcher, nil, nil, Config{
		TickRate:         60,
		CountdownSeconds: 3,
		Policy:           game.WinPolicy{Score: 5},
	})
	defer o.Shutdown()

	r := readyRoom(t, rooms)

	if err := o.StartCountdown(r.ID); err != nil {
		t.Fatalf("StartCountdown failed: %v", err)
	}
	if r.Phase() != state.PhaseCountdown {
		t.Errorf("Expected countdown phase, got %s", r.Phase())
	}
	if !o.Running(r.ID) {
		t.Error("Loop should be registered during countdown")
	}
	if r.Engine() == nil {
		t.Error("Engine should be attached at countdown start")
	}

	dispatcher.waitFor(t, "gameStarted", 5*time.Second)

	// The countdown must have run 3-2-1, in order, before gameStarted.
	var ticks []int
	for _, e := range dispatcher.captured() {
		if e.Event == "countdown" {
			payload := e.Data.(map[string]interface{})
			ticks = append(ticks, payload["countdown"].(int))
		}
	}
	if len(ticks) != 3 || ticks[0] != 3 || ticks[1] != 2 || ticks[2] != 1 {
		t.Errorf("Expected countdown sequence [3 2 1], got %v", ticks)
	}

	if r.Phase() != state.PhasePlaying {
		t.Errorf("Expected playing phase after gameStarted, got %s", r.Phase())
	}

	dispatcher.waitFor(t, "gameUpdate", 2*time.Second)
}

func TestOrchestrator_StartCountdown_Errors(t *testing.T) {
	rooms := room.NewDirectory()
	o := NewOrchestrator(rooms, &mockDispatcher{}, nil, nil, Config{})
	defer o.Shutdown()

	if err := o.StartCountdown("nonexistent"); err != room.ErrRoomNotFound {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}

	r := readyRoom(t, rooms)
	r.Transition(state.PhaseCountdown)
	if err := o.StartCountdown(r.ID); err != state.ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed for non-waiting room, got %v", err)
	}
}

func TestOrchestrator_AbortDuringCountdown(t *testing.T) {
	rooms := room.NewDirectory()
	dispatcher := &mockDispatcher{}
	o := NewOrchestrator(rooms, dispatcher, nil, nil, Config{
		CountdownSeconds: 3,
	})
	defer o.Shutdown()

	r := readyRoom(t, rooms)
	if err := o.StartCountdown(r.ID); err != nil {
		t.Fatalf("StartCountdown failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	o.Abort(r.ID)

	if o.Running(r.ID) {
		t.Error("Loop must be gone after abort")
	}
	if r.Phase() != state.PhaseWaiting {
		t.Errorf("Expected waiting after abort, got %s", r.Phase())
	}
	if r.Engine() != nil {
		t.Error("Engine must be detached after abort")
	}
	if rooms.AllReady(r.ID) {
		t.Error("Readiness must be cleared after abort")
	}

	// The cancelled loop must never reach the match.
	time.Sleep(1500 * time.Millisecond)
	if n := dispatcher.count("gameStarted"); n != 0 {
		t.Errorf("Aborted countdown must not start a match, got %d gameStarted", n)
	}
	if n := dispatcher.count("gameEnd"); n != 0 {
		t.Errorf("Abort must not declare a winner, got %d gameEnd", n)
	}

	// Repeat abort is harmless.
	o.Abort(r.ID)
}

func TestOrchestrator_AbortMidGame(t *testing.T) {
	rooms := room.NewDirectory()
	dispatcher := &mockDispatcher{}
	o := NewOrchestrator(rooms, dispatcher, nil, nil, Config{
		TickRate:         60,
		CountdownSeconds: 1,
	})
	defer o.Shutdown()

	r := readyRoom(t, rooms)
	if err := o.StartCountdown(r.ID); err != nil {
		t.Fatalf("StartCountdown failed: %v", err)
	}
	dispatcher.waitFor(t, "gameStarted", 5*time.Second)

	o.Abort(r.ID)

	if o.Running(r.ID) {
		t.Error("Loop must be gone after abort")
	}
	if r.Phase() != state.PhaseWaiting {
		t.Errorf("Expected waiting after mid-game abort, got %s", r.Phase())
	}
	for _, p := range r.Players() {
		if p.Score != 0 || p.IsReady {
			t.Errorf("Player %s not reset after abort: score=%d ready=%v", p.DisplayName, p.Score, p.IsReady)
		}
	}

	// Let any tick already in flight land before sampling.
	time.Sleep(50 * time.Millisecond)
	updates := dispatcher.count("gameUpdate")
	time.Sleep(200 * time.Millisecond)
	if after := dispatcher.count("gameUpdate"); after != updates {
		t.Errorf("Ticks kept flowing after abort: %d -> %d", updates, after)
	}
	if n := dispatcher.count("gameEnd"); n != 0 {
		t.Errorf("Mid-game abort must not emit gameEnd, got %d", n)
	}
}

func TestOrchestrator_WinFinishesMatch(t *testing.T) {
	if testing.Short() {
		t.Skip("plays a full point in real time")
	}

	rooms := room.NewDirectory()
	dispatcher := &mockDispatcher{}
	recorder := &mockRecorder{records: make(chan models.MatchRecord, 1)}
	o := NewOrchestrator(rooms, dispatcher, recorder, nil, Config{
		TickRate:         60,
		CountdownSeconds: 1,
		Policy:           game.WinPolicy{Score: 1},
	})
	defer o.Shutdown()

	r := readyRoom(t, rooms)
	if err := o.StartCountdown(r.ID); err != nil {
		t.Fatalf("StartCountdown failed: %v", err)
	}
	dispatcher.waitFor(t, "gameStarted", 5*time.Second)

	// Park both paddles at the top so the serve eventually slips past.
	engine := r.Engine()
	if engine == nil {
		t.Fatal("Engine missing while playing")
	}
	engine.SetPaddleInput(game.SideLeft, true, game.DirectionUp)
	engine.SetPaddleInput(game.SideRight, true, game.DirectionUp)

	dispatcher.waitFor(t, "gameEnd", 30*time.Second)

	if n := dispatcher.count("gameEnd"); n != 1 {
		t.Errorf("Expected exactly one gameEnd, got %d", n)
	}

	var payload GameEndPayload
	for _, e := range dispatcher.captured() {
		if e.Event == "gameEnd" {
			payload = e.Data.(GameEndPayload)
		}
	}
	if payload.WinnerSide != game.SideLeft && payload.WinnerSide != game.SideRight {
		t.Errorf("gameEnd missing winner side: %+v", payload)
	}

	select {
	case record := <-recorder.records:
		if record.RoomID != r.ID {
			t.Errorf("Record for wrong room: %s", record.RoomID)
		}
		if record.WinnerSide != string(payload.WinnerSide) {
			t.Errorf("Record winner %s disagrees with gameEnd %s", record.WinnerSide, payload.WinnerSide)
		}
		if len(record.Players) != 2 {
			t.Fatalf("Expected 2 players in record, got %d", len(record.Players))
		}
		wins := 0
		for _, p := range record.Players {
			if p.Outcome == "win" {
				wins++
			}
		}
		if wins != 1 {
			t.Errorf("Expected exactly one winning player, got %d", wins)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Match record was never persisted")
	}

	if o.Running(r.ID) {
		t.Error("Loop must be gone after the match ends")
	}
	if r.Phase() != state.PhaseWaiting {
		t.Errorf("Room should be back to waiting for a rematch, got %s", r.Phase())
	}
	if rooms.AllReady(r.ID) {
		t.Error("Readiness must be re-armed for the rematch")
	}
}

func TestOrchestrator_ShutdownCancelsAllLoops(t *testing.T) {
	rooms := room.NewDirectory()
	dispatcher := &mockDispatcher{}
	o := NewOrchestrator(rooms, dispatcher, nil, nil, Config{
		CountdownSeconds: 3,
	})

	r1 := readyRoom(t, rooms)
	o.StartCountdown(r1.ID)

	r2 := rooms.CreateRoom("sess3", 300, "carol", game.DifficultyEasy)
	rooms.AddPlayer(r2.ID, "sess4", 400, "dave")
	rooms.SetReady(r2.ID, "sess3")
	rooms.SetReady(r2.ID, "sess4")
	o.StartCountdown(r2.ID)

	o.Shutdown()

	if o.Running(r1.ID) || o.Running(r2.ID) {
		t.Error("Shutdown must drop every loop handle")
	}
	time.Sleep(1500 * time.Millisecond)
	if n := dispatcher.count("gameStarted"); n != 0 {
		t.Errorf("Cancelled countdowns must not start matches, got %d", n)
	}
}
