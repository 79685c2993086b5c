package room

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/pongserver/game"
	"github.com/wfunc/pongserver/state"
)

const MaxPlayers = 2

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrGameInProgress = errors.New("game already in progress")
	ErrNotInRoom      = errors.New("player not in room")
	ErrPlayerNotFound = errors.New("player not found")
)

// Player is the room-scoped view of an authenticated session.
type Player struct {
	SessionID   string          `json:"-"`
	UserID      int64           `json:"userId"`
	DisplayName string          `json:"displayName"`
	Side        game.Side       `json:"side"`
	IsHost      bool            `json:"isHost"`
	IsReady     bool            `json:"isReady"`
	Score       int             `json:"score"`
	JoinedAt    time.Time       `json:"-"`
}

// Room holds one match's membership and lifecycle. The engine exists
// only between countdown start and reset.
type Room struct {
	ID         string
	Difficulty game.Difficulty
	CreatedAt  time.Time

	players   []*Player
	lifecycle *state.Machine
	engine    *game.Engine
	mutex     sync.RWMutex
}

func newRoom(difficulty game.Difficulty) *Room {
	return &Room{
		ID:         uuid.New().String(),
		Difficulty: difficulty,
		CreatedAt:  time.Now(),
		lifecycle:  state.NewRoomMachine(),
	}
}

// Phase returns the room's lifecycle phase.
func (r *Room) Phase() state.Phase {
	return r.lifecycle.Current()
}

// Transition moves the room's lifecycle; illegal moves are rejected.
func (r *Room) Transition(to state.Phase) error {
	return r.lifecycle.Transition(to)
}

// Engine returns the room's running simulation, or nil.
func (r *Room) Engine() *game.Engine {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.engine
}

// AttachEngine hands the room its simulation for the next match cycle.
func (r *Room) AttachEngine(e *game.Engine) {
	r.mutex.Lock()
	r.engine = e
	r.mutex.Unlock()
}

// DetachEngine drops the simulation; the room owns no game state after.
func (r *Room) DetachEngine() {
	r.mutex.Lock()
	r.engine = nil
	r.mutex.Unlock()
}

// Players returns a snapshot of the membership, join order preserved.
// The copies are safe to serialize while the room keeps mutating.
func (r *Room) Players() []*Player {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]*Player, len(r.players))
	for i, p := range r.players {
		cp := *p
		out[i] = &cp
	}
	return out
}

// Player finds a member by session ID and returns a snapshot of it.
func (r *Room) Player(sessionID string) (*Player, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, p := range r.players {
		if p.SessionID == sessionID {
			cp := *p
			return &cp, true
		}
	}
	return nil, false
}

// SetScores writes both sides' scores under the room lock; callers
// outside this package never mutate Player fields directly.
func (r *Room) SetScores(left, right int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, p := range r.players {
		if p.Side == game.SideLeft {
			p.Score = left
		} else {
			p.Score = right
		}
	}
}

// HostDisplayName returns the current host's name, or "".
func (r *Room) HostDisplayName() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, p := range r.players {
		if p.IsHost {
			return p.DisplayName
		}
	}
	return ""
}

func (r *Room) playerCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.players)
}

// Info is the serializable view sent in roomCreated/roomUpdated and
// room listings.
type Info struct {
	ID         string          `json:"id"`
	Players    []*Player       `json:"players"`
	MaxPlayers int             `json:"maxPlayers"`
	Status     state.Phase     `json:"status"`
	Difficulty game.Difficulty `json:"difficulty"`
	Host       string          `json:"hostDisplayName"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Info snapshots the room for the wire.
func (r *Room) Info() Info {
	return Info{
		ID:         r.ID,
		Players:    r.Players(),
		MaxPlayers: MaxPlayers,
		Status:     r.Phase(),
		Difficulty: r.Difficulty,
		Host:       r.HostDisplayName(),
		CreatedAt:  r.CreatedAt,
	}
}

// Directory owns every room record. All membership mutation funnels
// through it so the room set and each room stay consistent.
type Directory struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[string]*Room),
	}
}

// CreateRoom seeds a one-player room with the creator as host on the
// left side.
func (d *Directory) CreateRoom(sessionID string, userID int64, displayName string, difficulty game.Difficulty) *Room {
	r := newRoom(difficulty)
	r.players = append(r.players, &Player{
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		Side:        game.SideLeft,
		IsHost:      true,
		JoinedAt:    time.Now(),
	})

	d.mutex.Lock()
	d.rooms[r.ID] = r
	d.mutex.Unlock()
	return r
}

// CreatePairedRoom materializes a two-player room directly in the
// waiting phase, host first. Used by the invite path; readiness is not
// skipped, the normal ready/countdown gate still applies.
func (d *Directory) CreatePairedRoom(host, guest *Player, difficulty game.Difficulty) *Room {
	r := newRoom(difficulty)
	now := time.Now()
	host.Side = game.SideLeft
	host.IsHost = true
	host.IsReady = false
	host.JoinedAt = now
	guest.Side = game.SideRight
	guest.IsHost = false
	guest.IsReady = false
	guest.JoinedAt = now.Add(time.Millisecond)
	r.players = append(r.players, host, guest)

	d.mutex.Lock()
	d.rooms[r.ID] = r
	d.mutex.Unlock()
	return r
}

// Get finds a room by ID.
func (d *Directory) Get(roomID string) (*Room, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	r, ok := d.rooms[roomID]
	return r, ok
}

// Count reports the number of live rooms.
func (d *Directory) Count() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return len(d.rooms)
}

// AddPlayer appends a guest to a waiting room with space. Joins are
// serialized with removals under the directory lock so a join can never
// land in a room whose last player just deleted it.
func (d *Directory) AddPlayer(roomID, sessionID string, userID int64, displayName string) (*Room, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.lifecycle.Current() != state.PhaseWaiting {
		return nil, ErrGameInProgress
	}
	if len(r.players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	r.players = append(r.players, &Player{
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		Side:        game.SideRight,
		JoinedAt:    time.Now(),
	})
	return r, nil
}

// RemovePlayer drops a member. The earliest remaining player inherits
// host; an empty room is deleted immediately. The removed player and
// whether the room was deleted are returned so the caller can tear down
// any running match.
func (d *Directory) RemovePlayer(roomID, sessionID string) (*Player, bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	r, ok := d.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	idx := -1
	for i, p := range r.players {
		if p.SessionID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false, ErrNotInRoom
	}

	removed := r.players[idx]
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	if len(r.players) == 0 {
		delete(d.rooms, r.ID)
		return removed, true, nil
	}

	if removed.IsHost {
		sort.SliceStable(r.players, func(i, j int) bool {
			return r.players[i].JoinedAt.Before(r.players[j].JoinedAt)
		})
		r.players[0].IsHost = true
	}
	return removed, false, nil
}

// SetReady marks a player ready. Idempotent.
func (d *Directory) SetReady(roomID, sessionID string) (*Room, *Player, error) {
	d.mutex.RLock()
	r, ok := d.rooms[roomID]
	d.mutex.RUnlock()
	if !ok {
		return nil, nil, ErrRoomNotFound
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, p := range r.players {
		if p.SessionID == sessionID {
			p.IsReady = true
			return r, p, nil
		}
	}
	return nil, nil, ErrNotInRoom
}

// AllReady is the sole gate for the countdown: a full room where every
// player is ready.
func (d *Directory) AllReady(roomID string) bool {
	d.mutex.RLock()
	r, ok := d.rooms[roomID]
	d.mutex.RUnlock()
	if !ok {
		return false
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if len(r.players) != MaxPlayers {
		return false
	}
	for _, p := range r.players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// ResetForRematch clears readiness and scores and drops the game state
// at the start of a new match cycle.
func (d *Directory) ResetForRematch(roomID string) {
	d.mutex.RLock()
	r, ok := d.rooms[roomID]
	d.mutex.RUnlock()
	if !ok {
		return
	}

	r.mutex.Lock()
	for _, p := range r.players {
		p.IsReady = false
		p.Score = 0
	}
	r.engine = nil
	r.mutex.Unlock()
}

// Remove deletes a room outright, e.g. after its last player vanished.
func (d *Directory) Remove(roomID string) {
	d.mutex.Lock()
	delete(d.rooms, roomID)
	d.mutex.Unlock()
}

// ListAvailable returns waiting rooms with space, for matchmaking.
func (d *Directory) ListAvailable() []Info {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	out := make([]Info, 0)
	for _, r := range d.rooms {
		if r.Phase() == state.PhaseWaiting && r.playerCount() < MaxPlayers {
			out = append(out, r.Info())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
