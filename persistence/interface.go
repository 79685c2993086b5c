// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/wfunc/pongserver/models"
)

// Database is the collaborator persistence surface. Implementations
// exist for gorm and raw database/sql; the core never calls it inside
// a tick.
type Database interface {
	UpsertPlayer(userID int64, displayName string) error
	SaveMatchRecord(record models.MatchRecord) error
	RecordOutcome(userID int64, won bool) error
	GetPlayerStats(userID int64) (*models.PlayerStats, error)
	Close() error
}

var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
