package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/pongserver/logger"
	"github.com/wfunc/pongserver/models"
	"github.com/wfunc/pongserver/services"
)

// Server manages the admin RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// StatsRPC exposes player statistics to operators. Methods follow the
// net/rpc signature convention.
type StatsRPC struct {
	stats *services.StatsService
}

func NewStatsRPC(stats *services.StatsService) *StatsRPC {
	return &StatsRPC{stats: stats}
}

type GetPlayerStatsArgs struct {
	UserID int64
}

type GetPlayerStatsReply struct {
	Stats *models.PlayerStats
}

func (r *StatsRPC) GetPlayerStats(args *GetPlayerStatsArgs, reply *GetPlayerStatsReply) error {
	stats, err := r.stats.GetPlayerStats(args.UserID)
	if err != nil {
		return err
	}
	reply.Stats = stats
	return nil
}
