package server

import (
	"encoding/json"
	"strings"

	"github.com/wfunc/pongserver/game"
	"github.com/wfunc/pongserver/invite"
	"github.com/wfunc/pongserver/logger"
	"github.com/wfunc/pongserver/network"
	"github.com/wfunc/pongserver/room"
	"github.com/wfunc/pongserver/session"
)

type authenticateReq struct {
	DisplayName string `json:"displayName"`
	UserID      int64  `json:"userId"`
}

func (s *GameServer) handleAuthenticate(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	var req authenticateReq
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return "", nil, session.ErrNotAuthenticated
	}

	registered, evicted, err := s.sessions.Register(sess.GetID(), req.UserID, req.DisplayName)
	if err != nil {
		return "", nil, err
	}

	// A reconnect under the same name forces the stale connection out.
	if evicted != nil {
		logger.Log.Infof("Evicting stale session %s for display name %s", evicted.GetID(), req.DisplayName)
		if evictedRoom := evicted.Room(); evictedRoom != "" {
			s.playerExit(evicted, evictedRoom)
		}
		evicted.Conn.CloseWithCode(network.CloseEvicted, "logged in elsewhere")
	}

	if s.stats != nil {
		go func() {
			if err := s.stats.EnsurePlayer(req.UserID, req.DisplayName); err != nil {
				logger.Log.Errorf("Failed to upsert player %d: %v", req.UserID, err)
			}
		}()
	}

	s.dispatcher.BroadcastToOthers(sess.GetID(), network.EvtPresence, presencePayload(req.DisplayName, true))

	return network.EvtAuthenticated, map[string]interface{}{
		"userId":      registered.UserID,
		"displayName": registered.DisplayName,
	}, nil
}

type createRoomReq struct {
	Difficulty game.Difficulty `json:"difficulty"`
}

func (s *GameServer) handleCreateRoom(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	var req createRoomReq
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}
	if !game.ValidDifficulty(req.Difficulty) {
		req.Difficulty = game.DifficultyMedium
	}

	if cur := sess.Room(); cur != "" {
		s.playerExit(sess, cur)
	}

	r := s.rooms.CreateRoom(sess.GetID(), sess.UserID, sess.DisplayName, req.Difficulty)
	sess.SetRoom(r.ID)
	s.monitor.SetActiveRooms(s.rooms.Count())

	logger.Log.Infof("Session %s created room %s (difficulty %s)", sess.GetID(), r.ID, req.Difficulty)
	return network.EvtRoomCreated, r.Info(), nil
}

type joinRoomReq struct {
	RoomID string `json:"roomId"`
}

func (s *GameServer) handleJoinRoom(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	var req joinRoomReq
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}

	if cur := sess.Room(); cur != "" {
		s.playerExit(sess, cur)
	}

	r, err := s.rooms.AddPlayer(req.RoomID, sess.GetID(), sess.UserID, sess.DisplayName)
	if err != nil {
		return "", nil, err
	}
	sess.SetRoom(r.ID)

	logger.Log.Infof("Session %s joined room %s", sess.GetID(), r.ID)

	info := r.Info()
	s.dispatcher.BroadcastToRoom(r.ID, network.EvtPlayerJoined, map[string]interface{}{
		"displayName": sess.DisplayName,
		"room":        info,
	})

	// Replay current readiness to the newcomer only, so a late joiner
	// sees accurate state without duplicate events to everyone else.
	for _, p := range r.Players() {
		if p.IsReady && p.SessionID != sess.GetID() {
			s.dispatcher.SendToSession(sess.GetID(), network.EvtPlayerReadyOut, map[string]interface{}{
				"roomId":      r.ID,
				"displayName": p.DisplayName,
			})
		}
	}

	return network.EvtRoomUpdated, info, nil
}

type leaveRoomReq struct {
	RoomID string `json:"roomId"`
}

func (s *GameServer) handleLeaveRoom(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	var req leaveRoomReq
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}
	if cur := sess.Room(); cur == "" || cur != req.RoomID {
		return "", nil, room.ErrNotInRoom
	}
	s.playerExit(sess, req.RoomID)
	return "", nil, nil
}

// playerExit removes a player from a room as one lifecycle transition:
// any running countdown or match is cancelled before the membership
// change, remaining players are notified, and an empty room disappears.
func (s *GameServer) playerExit(sess *session.Session, roomID string) {
	if s.orchestrator.Running(roomID) {
		s.orchestrator.Abort(roomID)
	}

	removed, deleted, err := s.rooms.RemovePlayer(roomID, sess.GetID())
	if err != nil {
		sess.SetRoom("")
		return
	}
	sess.SetRoom("")

	if deleted {
		logger.Log.Infof("Room %s deleted (last player left)", roomID)
	} else {
		r, ok := s.rooms.Get(roomID)
		if ok {
			info := r.Info()
			s.dispatcher.BroadcastToRoom(roomID, network.EvtPlayerLeft, map[string]interface{}{
				"displayName": removed.DisplayName,
				"room":        info,
			})
			s.dispatcher.BroadcastToRoom(roomID, network.EvtRoomUpdated, info)
		}
	}
	s.monitor.SetActiveRooms(s.rooms.Count())
}

type playerReadyReq struct {
	RoomID string `json:"roomId"`
}

func (s *GameServer) handlePlayerReady(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	var req playerReadyReq
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}
	return "", nil, s.markReady(sess, req.RoomID)
}

func (s *GameServer) markReady(sess *session.Session, roomID string) error {
	if cur := sess.Room(); cur == "" || cur != roomID {
		return room.ErrNotInRoom
	}

	r, p, err := s.rooms.SetReady(roomID, sess.GetID())
	if err != nil {
		return err
	}

	s.dispatcher.BroadcastToRoom(r.ID, network.EvtPlayerReadyOut, map[string]interface{}{
		"roomId":      r.ID,
		"displayName": p.DisplayName,
	})

	if s.rooms.AllReady(r.ID) && !s.orchestrator.Running(r.ID) {
		if err := s.orchestrator.StartCountdown(r.ID); err != nil {
			logger.Log.Errorf("Failed to start countdown for room %s: %v", r.ID, err)
		}
	}
	return nil
}

type gameInputReq struct {
	RoomID    string `json:"roomId"`
	Type      string `json:"type"`
	Direction string `json:"direction"`
}

func (s *GameServer) handleGameInput(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	var req gameInputReq
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}

	if req.Type == "ready" {
		return "", nil, s.markReady(sess, req.RoomID)
	}

	if cur := sess.Room(); cur == "" || cur != req.RoomID {
		return "", nil, room.ErrNotInRoom
	}
	r, ok := s.rooms.Get(req.RoomID)
	if !ok {
		return "", nil, room.ErrRoomNotFound
	}
	p, ok := r.Player(sess.GetID())
	if !ok {
		return "", nil, room.ErrNotInRoom
	}

	engine := r.Engine()
	if engine == nil {
		// No running match; paddle input outside a match is dropped.
		return "", nil, nil
	}

	switch req.Type {
	case "paddleMove":
		if req.Direction != game.DirectionUp && req.Direction != game.DirectionDown {
			return "", nil, nil
		}
		engine.SetPaddleInput(p.Side, true, req.Direction)
	case "paddleStop":
		engine.SetPaddleInput(p.Side, false, "")
	}
	return "", nil, nil
}

func (s *GameServer) handleGetAvailableRooms(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	return network.EvtAvailableRooms, map[string]interface{}{
		"rooms": s.rooms.ListAvailable(),
	}, nil
}

type inviteCreateReq struct {
	TargetDisplayName string          `json:"targetDisplayName"`
	Difficulty        game.Difficulty `json:"difficulty"`
}

func (s *GameServer) handleInviteCreate(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	var req inviteCreateReq
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}

	receiver, ok := s.sessions.GetByDisplayName(req.TargetDisplayName)
	if !ok {
		return "", nil, room.ErrPlayerNotFound
	}

	inv, err := s.invites.Create(sess.GetID(), sess.DisplayName, receiver.DisplayName, req.Difficulty)
	if err != nil {
		return "", nil, err
	}
	s.monitor.SetPendingInvites(s.invites.PendingCount())

	s.dispatcher.SendToSession(receiver.GetID(), network.EvtGameInvite, inv)
	logger.Log.Infof("Invite %s: %s -> %s (%s)", inv.ID, inv.SenderName, inv.ReceiverName, inv.Difficulty)
	return network.EvtInviteSent, inv, nil
}

type inviteResponseReq struct {
	InviteID string `json:"inviteId"`
	Response string `json:"response"` // accept | decline
}

func (s *GameServer) handleInviteResponse(sess *session.Session, data json.RawMessage) (string, interface{}, error) {
	var req inviteResponseReq
	if err := json.Unmarshal(data, &req); err != nil {
		return "", nil, err
	}

	inv, ok := s.invites.Get(req.InviteID)
	if !ok {
		return "", nil, invite.ErrInviteNotFound
	}
	if !strings.EqualFold(inv.ReceiverName, sess.DisplayName) {
		return "", nil, invite.ErrInvalidInvite
	}

	if req.Response != "accept" {
		s.invites.Consume(inv.ID)
		s.monitor.SetPendingInvites(s.invites.PendingCount())
		s.dispatcher.SendToSession(inv.SenderSessionID, network.EvtInviteDeclined, inv)
		return "", nil, nil
	}

	sender, ok := s.sessions.GetByConn(inv.SenderSessionID)
	if !ok {
		s.invites.Consume(inv.ID)
		s.monitor.SetPendingInvites(s.invites.PendingCount())
		return "", nil, room.ErrPlayerNotFound
	}

	if _, err := s.invites.Consume(inv.ID); err != nil {
		return "", nil, err
	}
	s.monitor.SetPendingInvites(s.invites.PendingCount())

	// Both parties drop whatever room they were in; the invite
	// manufactures a fresh paired room with the sender hosting. The
	// normal ready/countdown path still applies from here.
	if cur := sender.Room(); cur != "" {
		s.playerExit(sender, cur)
	}
	if cur := sess.Room(); cur != "" {
		s.playerExit(sess, cur)
	}

	r := s.rooms.CreatePairedRoom(
		&room.Player{SessionID: sender.GetID(), UserID: sender.UserID, DisplayName: sender.DisplayName},
		&room.Player{SessionID: sess.GetID(), UserID: sess.UserID, DisplayName: sess.DisplayName},
		inv.Difficulty,
	)
	sender.SetRoom(r.ID)
	sess.SetRoom(r.ID)
	s.monitor.SetActiveRooms(s.rooms.Count())

	info := r.Info()
	s.dispatcher.SendToSession(sender.GetID(), network.EvtInviteAccepted, map[string]interface{}{
		"invite": inv,
		"room":   info,
	})
	logger.Log.Infof("Invite %s accepted, room %s created", inv.ID, r.ID)

	return network.EvtInviteAccepted, map[string]interface{}{
		"invite": inv,
		"room":   info,
	}, nil
}
