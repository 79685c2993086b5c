package server

import (
	"encoding/json"
	"errors"
	"net/http"
	netrpc "net/rpc"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/pongserver/broadcast"
	"github.com/wfunc/pongserver/config"
	"github.com/wfunc/pongserver/game"
	"github.com/wfunc/pongserver/invite"
	"github.com/wfunc/pongserver/logger"
	"github.com/wfunc/pongserver/match"
	"github.com/wfunc/pongserver/monitor"
	"github.com/wfunc/pongserver/network"
	"github.com/wfunc/pongserver/persistence"
	"github.com/wfunc/pongserver/room"
	gameserver_rpc "github.com/wfunc/pongserver/rpc"
	"github.com/wfunc/pongserver/services"
	"github.com/wfunc/pongserver/session"
	"github.com/wfunc/pongserver/timer"
)

// handlerFunc processes one inbound event and returns the reply event
// name and payload. An empty event name means no direct reply; a typed
// error becomes an error reply to the requester only.
type handlerFunc func(sess *session.Session, data json.RawMessage) (string, interface{}, error)

type GameServer struct {
	addr         string
	upgrader     websocket.Upgrader
	sessions     *session.Registry
	rooms        *room.Directory
	invites      *invite.Broker
	orchestrator *match.Orchestrator
	dispatcher   broadcast.Dispatcher
	stats        *services.StatsService
	rpcServer    *gameserver_rpc.Server
	monitor      *monitor.Monitor
	timers       *timer.Manager
	handlers     map[string]handlerFunc
	shutdownChan chan struct{}
}

func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	s := &GameServer{
		addr:         cfg.Server.HTTPAddress,
		sessions:     session.NewRegistry(),
		rooms:        room.NewDirectory(),
		timers:       timer.NewManager(),
		monitor:      monitor.NewMonitor("pongserver"),
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	if db != nil {
		s.stats = services.NewStatsService(db)
	}
	s.dispatcher = broadcast.NewRoomDispatcher(s.rooms, s.sessions)
	s.invites = invite.NewBroker(cfg.Game.InviteTTL, cfg.Game.InviteCooldown, s.timers)

	var recorder match.Recorder
	if s.stats != nil {
		recorder = s.stats
	}
	s.orchestrator = match.NewOrchestrator(s.rooms, s.dispatcher, recorder, s.monitor, match.Config{
		TickRate:         cfg.Game.TickRate,
		CountdownSeconds: cfg.Game.CountdownSeconds,
		Policy: game.WinPolicy{
			Score: cfg.Game.WinScore,
			ByTwo: cfg.Game.WinByTwo,
		},
	})

	if cfg.Server.RPCAddress != "" && s.stats != nil {
		rpcServer, err := gameserver_rpc.NewServer(cfg.Server.RPCAddress)
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
		s.rpcServer = rpcServer
		netrpc.Register(gameserver_rpc.NewStatsRPC(s.stats))
	}

	s.monitor.StartServer(cfg.Server.MetricsAddress)
	s.registerHandlers()
	return s
}

func (s *GameServer) registerHandlers() {
	s.handlers = map[string]handlerFunc{
		network.EvtAuthenticate:      s.handleAuthenticate,
		network.EvtCreateRoom:        s.handleCreateRoom,
		network.EvtJoinRoom:          s.handleJoinRoom,
		network.EvtLeaveRoom:         s.handleLeaveRoom,
		network.EvtPlayerReady:       s.handlePlayerReady,
		network.EvtGameInput:         s.handleGameInput,
		network.EvtGetAvailableRooms: s.handleGetAvailableRooms,
		network.EvtInviteCreate:      s.handleInviteCreate,
		network.EvtInviteResponse:    s.handleInviteResponse,
	}
}

func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.orchestrator.Shutdown()
	s.invites.Stop()
	s.timers.Stop()
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessions.Add(sess)
	s.monitor.SetOnlinePlayers(s.sessions.Count())

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.handleDisconnect(sess)
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			evt, err := wsConn.ReadEvent()
			if err != nil {
				return
			}
			s.dispatch(sess, evt)
		}
	}
}

// dispatch routes one inbound event to exactly one component operation
// and shapes its typed result into the outbound reply.
func (s *GameServer) dispatch(sess *session.Session, evt *network.Event) {
	s.monitor.IncMessagesReceived()

	handler, ok := s.handlers[evt.Event]
	if !ok {
		logger.Log.Infof("Unknown event %q from session %s", evt.Event, sess.GetID())
		sess.Send(network.EvtError, errorPayload("unknown event: "+evt.Event))
		return
	}

	if evt.Event != network.EvtAuthenticate && !sess.Authenticated() {
		sess.Send(network.EvtError, errorPayload(errorMessage(session.ErrNotAuthenticated)))
		return
	}

	replyEvent, payload, err := handler(sess, evt.Data)
	if err != nil {
		sess.Send(network.EvtError, errorPayload(errorMessage(err)))
		return
	}
	if replyEvent != "" {
		sess.Send(replyEvent, payload)
	}
}

// handleDisconnect is the first-class lifecycle transition for a
// vanished connection: tear the player's match down, notify the
// remaining player, and announce the identity offline.
func (s *GameServer) handleDisconnect(sess *session.Session) {
	if cur := sess.Room(); cur != "" {
		s.playerExit(sess, cur)
	}
	wasAuthenticated := sess.Authenticated()
	name := sess.DisplayName

	s.sessions.Remove(sess.GetID())
	s.monitor.SetOnlinePlayers(s.sessions.Count())

	if wasAuthenticated {
		s.dispatcher.BroadcastToOthers(sess.GetID(), network.EvtPresence, presencePayload(name, false))
	}
}

type errorBody struct {
	Message string `json:"message"`
}

func errorPayload(message string) errorBody {
	return errorBody{Message: message}
}

func presencePayload(displayName string, online bool) map[string]interface{} {
	return map[string]interface{}{
		"displayName": displayName,
		"online":      online,
	}
}

// errorMessage maps typed component errors onto the stable strings
// clients key on. Anything unexpected becomes a generic server error.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return "authentication required"
	case errors.Is(err, room.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, room.ErrRoomFull):
		return "room is full"
	case errors.Is(err, room.ErrGameInProgress):
		return "game already in progress"
	case errors.Is(err, room.ErrNotInRoom):
		return "you are not in this room"
	case errors.Is(err, room.ErrPlayerNotFound):
		return "player not found"
	case errors.Is(err, invite.ErrInvalidInvite):
		return err.Error()
	case errors.Is(err, invite.ErrInviteNotFound):
		return "invite not found"
	default:
		logger.Log.Errorf("Unexpected handler error: %v", err)
		return "internal server error"
	}
}
