package services

import (
	"fmt"

	"github.com/wfunc/pongserver/models"
	"github.com/wfunc/pongserver/persistence"
)

// StatsService is the bridge between the in-memory match core and the
// persistence collaborator. Nothing here runs inside a tick.
type StatsService struct {
	db persistence.Database
}

func NewStatsService(db persistence.Database) *StatsService {
	return &StatsService{db: db}
}

// EnsurePlayer makes sure the profile row exists after authentication.
func (s *StatsService) EnsurePlayer(userID int64, displayName string) error {
	return s.db.UpsertPlayer(userID, displayName)
}

// RecordMatch persists the match record and each participant's
// win/loss outcome.
func (s *StatsService) RecordMatch(record models.MatchRecord) error {
	if err := s.db.SaveMatchRecord(record); err != nil {
		return fmt.Errorf("save match record: %w", err)
	}
	for _, p := range record.Players {
		if err := s.db.RecordOutcome(p.UserID, p.Outcome == "win"); err != nil {
			return fmt.Errorf("record outcome for user %d: %w", p.UserID, err)
		}
	}
	return nil
}

// GetPlayerStats serves the aggregate used by the admin RPC.
func (s *StatsService) GetPlayerStats(userID int64) (*models.PlayerStats, error) {
	return s.db.GetPlayerStats(userID)
}
