package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/pongserver/network"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// Session is one authenticated connection's identity. RoomID is kept
// behind accessors: eviction and invite-accept paths touch a session
// from other connections' goroutines.
type Session struct {
	ID          string
	Conn        network.Connection
	UserID      int64
	DisplayName string
	roomID      string
	CreatedAt   time.Time
	LastActive  time.Time
	mutex       sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

func (s *Session) Send(event string, data interface{}) error {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
	return s.Conn.Send(event, data)
}

func (s *Session) GetID() string {
	return s.ID
}

// Room returns the room this session currently sits in, or "".
func (s *Session) Room() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID
}

// SetRoom records the session's room membership.
func (s *Session) SetRoom(roomID string) {
	s.mutex.Lock()
	s.roomID = roomID
	s.mutex.Unlock()
}

// Authenticated reports whether an identity was attached.
func (s *Session) Authenticated() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.DisplayName != ""
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Registry maps live connections to identities and enforces one active
// connection per display name.
type Registry struct {
	sessions map[string]*Session // session ID -> session
	byName   map[string]*Session // lowercased display name -> session
	mutex    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byName:   make(map[string]*Session),
	}
}

// Add tracks a connection before it authenticates.
func (r *Registry) Add(s *Session) {
	r.mutex.Lock()
	r.sessions[s.ID] = s
	r.mutex.Unlock()
}

// Register attaches an identity to a live session. Any prior session
// under the same display name (case-insensitive) is returned as evicted;
// the caller closes it with the eviction code.
func (r *Registry) Register(sessionID string, userID int64, displayName string) (*Session, *Session, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, nil, ErrNotAuthenticated
	}

	key := strings.ToLower(displayName)
	var evicted *Session
	if prior, exists := r.byName[key]; exists && prior.ID != sessionID {
		evicted = prior
		delete(r.sessions, prior.ID)
	}

	s.mutex.Lock()
	oldName := s.DisplayName
	s.UserID = userID
	s.DisplayName = displayName
	s.mutex.Unlock()

	// A rename releases the old name; a stale mapping would let a
	// newcomer claiming it evict this live session.
	if oldKey := strings.ToLower(oldName); oldName != "" && oldKey != key {
		if cur, exists := r.byName[oldKey]; exists && cur.ID == sessionID {
			delete(r.byName, oldKey)
		}
	}
	r.byName[key] = s

	return s, evicted, nil
}

// GetByConn resolves a connection handle to its session.
func (r *Registry) GetByConn(sessionID string) (*Session, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// GetByDisplayName resolves a display name, case-insensitively.
func (r *Registry) GetByDisplayName(name string) (*Session, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	s, ok := r.byName[strings.ToLower(name)]
	return s, ok
}

// Remove forgets a session on disconnect.
func (r *Registry) Remove(sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	if s.DisplayName != "" {
		key := strings.ToLower(s.DisplayName)
		if cur, exists := r.byName[key]; exists && cur.ID == sessionID {
			delete(r.byName, key)
		}
	}
}

// Count reports live sessions.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}

// Others returns every session except the given one; used for presence
// broadcasts, which never echo back to the acting connection.
func (r *Registry) Others(sessionID string) []*Session {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id != sessionID {
			out = append(out, s)
		}
	}
	return out
}
