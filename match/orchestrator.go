package match

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/pongserver/broadcast"
	"github.com/wfunc/pongserver/game"
	"github.com/wfunc/pongserver/logger"
	"github.com/wfunc/pongserver/models"
	"github.com/wfunc/pongserver/network"
	"github.com/wfunc/pongserver/room"
	"github.com/wfunc/pongserver/state"
)

// Config tunes every match the orchestrator runs.
type Config struct {
	TickRate         int
	CountdownSeconds int
	Policy           game.WinPolicy
}

// Orchestrator drives room lifecycles: the pre-game countdown, one tick
// loop per playing room, and the teardown of both. Every loop is paired
// with a cancel handle keyed by room ID; the handle is cancelled before
// any terminal transition so no orphaned loop can keep mutating a room.
type Orchestrator struct {
	rooms      *room.Directory
	dispatcher broadcast.Dispatcher
	recorder   Recorder
	metrics    Metrics
	cfg        Config

	cancels map[string]context.CancelFunc
	mutex   sync.Mutex
}

func NewOrchestrator(rooms *room.Directory, dispatcher broadcast.Dispatcher, recorder Recorder, metrics Metrics, cfg Config) *Orchestrator {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 60
	}
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = 3
	}
	if cfg.Policy.Score <= 0 {
		cfg.Policy.Score = 5
	}
	return &Orchestrator{
		rooms:      rooms,
		dispatcher: dispatcher,
		recorder:   recorder,
		metrics:    metrics,
		cfg:        cfg,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// GameEndPayload is the gameEnd event body.
type GameEndPayload struct {
	WinnerSide game.Side  `json:"winnerSide"`
	GameState  game.State `json:"gameState"`
}

// GameUpdatePayload is the gameUpdate event body.
type GameUpdatePayload struct {
	GameState game.State `json:"gameState"`
	Timestamp int64      `json:"timestamp"`
}

// StartCountdown begins the 3-2-1 sequence for a full, all-ready room
// and hands off to the tick loop. No-op if the room is not in the
// waiting phase or already has a loop.
func (o *Orchestrator) StartCountdown(roomID string) error {
	r, ok := o.rooms.Get(roomID)
	if !ok {
		return room.ErrRoomNotFound
	}
	if err := r.Transition(state.PhaseCountdown); err != nil {
		return err
	}

	engine := game.NewEngine(r.Difficulty, o.cfg.Policy, time.Now())
	r.AttachEngine(engine)

	ctx, cancel := context.WithCancel(context.Background())
	o.mutex.Lock()
	if _, exists := o.cancels[roomID]; exists {
		o.mutex.Unlock()
		cancel()
		return nil
	}
	o.cancels[roomID] = cancel
	running := len(o.cancels)
	o.mutex.Unlock()
	if o.metrics != nil {
		o.metrics.SetRunningMatches(running)
	}

	go o.run(ctx, r, engine)
	return nil
}

// Abort tears a room's countdown or match down without a winner: the
// loop is cancelled first, then the room reverts to waiting. Used on
// mid-game disconnects and room deletion.
func (o *Orchestrator) Abort(roomID string) {
	if !o.cancelLoop(roomID) {
		return
	}

	r, ok := o.rooms.Get(roomID)
	if !ok {
		return
	}
	r.DetachEngine()
	if phase := r.Phase(); phase == state.PhaseCountdown || phase == state.PhasePlaying {
		if err := r.Transition(state.PhaseWaiting); err != nil {
			logger.Log.Errorf("Room %s abort transition from %s failed: %v", roomID, phase, err)
		}
	}
	o.rooms.ResetForRematch(roomID)
	logger.Log.Infof("Match in room %s aborted", roomID)
}

// Running reports whether a loop exists for the room.
func (o *Orchestrator) Running(roomID string) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	_, ok := o.cancels[roomID]
	return ok
}

// Shutdown cancels every loop.
func (o *Orchestrator) Shutdown() {
	o.mutex.Lock()
	cancels := o.cancels
	o.cancels = make(map[string]context.CancelFunc)
	o.mutex.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (o *Orchestrator) cancelLoop(roomID string) bool {
	o.mutex.Lock()
	cancel, ok := o.cancels[roomID]
	if ok {
		delete(o.cancels, roomID)
	}
	running := len(o.cancels)
	o.mutex.Unlock()
	if ok {
		cancel()
		if o.metrics != nil {
			o.metrics.SetRunningMatches(running)
		}
	}
	return ok
}

// run owns one room's countdown and tick loop until win or cancel.
func (o *Orchestrator) run(ctx context.Context, r *room.Room, engine *game.Engine) {
	if !o.countdown(ctx, r, engine) {
		return
	}

	if err := r.Transition(state.PhasePlaying); err != nil {
		logger.Log.Errorf("Room %s could not enter playing phase: %v", r.ID, err)
		o.cancelLoop(r.ID)
		return
	}
	started := time.Now()
	engine.Start(started)
	o.dispatcher.BroadcastToRoom(r.ID, network.EvtGameStarted, r.Info())
	logger.Log.Infof("Match started in room %s (difficulty %s)", r.ID, r.Difficulty)

	interval := time.Second / time.Duration(o.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st, won := engine.Tick(now)
			if o.metrics != nil {
				o.metrics.ObserveTickDuration(time.Since(now))
			}
			o.dispatcher.BroadcastToRoom(r.ID, network.EvtGameUpdate, GameUpdatePayload{
				GameState: st,
				Timestamp: now.UnixMilli(),
			})
			if won {
				o.finish(r, st, started)
				return
			}
		}
	}
}

// countdown runs the pre-game sequence; false means it was cancelled.
func (o *Orchestrator) countdown(ctx context.Context, r *room.Room, engine *game.Engine) bool {
	for n := o.cfg.CountdownSeconds; n >= 1; n-- {
		engine.SetCountdown(n)
		o.dispatcher.BroadcastToRoom(r.ID, network.EvtCountdown, map[string]interface{}{
			"roomId":    r.ID,
			"countdown": n,
		})
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	return true
}

// finish runs the terminal transition for a won match: cancel the loop
// handle, emit gameEnd exactly once, persist the record off the hot
// path, and reset the room for a rematch.
func (o *Orchestrator) finish(r *room.Room, final game.State, started time.Time) {
	o.cancelLoop(r.ID)

	if err := r.Transition(state.PhaseFinished); err != nil {
		logger.Log.Errorf("Room %s finish transition failed: %v", r.ID, err)
	}

	// Scores shown in gameEnd are exactly the ones the win check used;
	// the writeback happens under the room lock.
	r.SetScores(final.Paddles.Left.Score, final.Paddles.Right.Score)
	players := r.Players()

	o.dispatcher.BroadcastToRoom(r.ID, network.EvtGameEnd, GameEndPayload{
		WinnerSide: final.WinnerSide,
		GameState:  final,
	})
	logger.Log.Infof("Match finished in room %s, winner %s (%d-%d)",
		r.ID, final.WinnerSide, final.Paddles.Left.Score, final.Paddles.Right.Score)

	if o.recorder != nil {
		record := buildRecord(r, players, final, started)
		go func() {
			if err := o.recorder.RecordMatch(record); err != nil {
				logger.Log.Errorf("Failed to persist match record for room %s: %v", r.ID, err)
			}
		}()
	}

	r.DetachEngine()
	if err := r.Transition(state.PhaseWaiting); err != nil {
		logger.Log.Errorf("Room %s rematch transition failed: %v", r.ID, err)
	}
	o.rooms.ResetForRematch(r.ID)
}

func buildRecord(r *room.Room, players []*room.Player, final game.State, started time.Time) models.MatchRecord {
	record := models.MatchRecord{
		RoomID:     r.ID,
		Difficulty: string(r.Difficulty),
		WinnerSide: string(final.WinnerSide),
		Duration:   int(time.Since(started).Seconds()),
		CreatedAt:  time.Now(),
	}
	for _, p := range players {
		outcome := "lose"
		if string(p.Side) == record.WinnerSide {
			outcome = "win"
		}
		record.Players = append(record.Players, models.MatchPlayer{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Side:        string(p.Side),
			Score:       p.Score,
			Outcome:     outcome,
		})
	}
	return record
}
