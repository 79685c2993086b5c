package main

import (
	"github.com/wfunc/pongserver/config"
	"github.com/wfunc/pongserver/logger"
	"github.com/wfunc/pongserver/persistence"
	"github.com/wfunc/pongserver/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.Init(cfg.Server.Debug)

	// Initialize Database. The server runs without persistence if no
	// host is configured; match history is simply not recorded.
	var db persistence.Database
	if cfg.Database.Postgres.Host != "" {
		db, err = persistence.NewGormPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Log.Info("Database connection successful.")
	} else {
		logger.Log.Warn("No database configured; match history disabled.")
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg, db)

	// Start Server
	logger.Log.Infof("Starting pong server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
