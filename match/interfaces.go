package match

import (
	"time"

	"github.com/wfunc/pongserver/models"
)

// Recorder persists a finished match. Called off the hot path; a nil
// recorder disables persistence.
type Recorder interface {
	RecordMatch(record models.MatchRecord) error
}

// Metrics receives orchestrator observations. Implemented by the
// monitor package; nil disables it.
type Metrics interface {
	SetRunningMatches(count int)
	ObserveTickDuration(d time.Duration)
}
