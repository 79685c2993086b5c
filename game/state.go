package game

import (
	"time"

	"github.com/wfunc/pongserver/state"
)

// Side identifies a paddle / goal side.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Direction of paddle travel along its axis.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Playfield constants. All positions are in field units; the ball x/y is
// its center.
const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PaddleWidth  = 10.0
	PaddleHeight = 100.0
	PaddleInset  = 20.0 // distance from the goal line to the paddle face
	BoundaryGap  = 5.0  // paddles never overlap the boundary line

	BallSize = 10.0

	MaxBounceAngle = 45.0 * (3.14159265358979 / 180.0)
	SpeedIncrease  = 1.25
)

// Ball state. vx/vy are units per second.
type Ball struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	VX   float64 `json:"vx"`
	VY   float64 `json:"vy"`
	Size float64 `json:"size"`
}

// Paddle state. Moving/Direction mirror the latest player input.
type Paddle struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Speed     float64 `json:"speed"`
	Score     int     `json:"score"`
	Moving    bool    `json:"moving"`
	Direction string  `json:"direction"`
}

// Paddles holds both sides.
type Paddles struct {
	Left  Paddle `json:"left"`
	Right Paddle `json:"right"`
}

// State is the full simulation state of one match, owned by its room.
type State struct {
	Ball       Ball        `json:"ball"`
	Paddles    Paddles     `json:"paddles"`
	Phase      state.Phase `json:"phase"`
	WinnerSide Side        `json:"winnerSide,omitempty"`
	LastScorer Side        `json:"lastScorer,omitempty"`
	Countdown  int         `json:"countdown"`
	LastUpdate int64       `json:"lastUpdateTimestamp"`
}

// Difficulty selects the speed envelope of a match.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// ValidDifficulty reports whether d names a known difficulty.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Baseline speeds, scaled per difficulty and clamped so no setting can
// produce a degenerate simulation.
const (
	baseBallSpeedMin = 260.0
	baseBallSpeedMax = 650.0
	basePaddleSpeed  = 420.0

	absSpeedFloor = 120.0
	absSpeedCeil  = 900.0
)

// Params are the resolved per-difficulty speed bounds.
type Params struct {
	BallSpeedMin float64
	BallSpeedMax float64
	PaddleSpeed  float64
}

func clampSpeed(v float64) float64 {
	if v < absSpeedFloor {
		return absSpeedFloor
	}
	if v > absSpeedCeil {
		return absSpeedCeil
	}
	return v
}

// ParamsFor resolves the speed envelope for a difficulty. Unknown values
// fall back to MEDIUM.
func ParamsFor(d Difficulty) Params {
	ball, paddle := 1.0, 1.0
	switch d {
	case DifficultyEasy:
		ball, paddle = 0.7, 0.8
	case DifficultyHard:
		ball, paddle = 1.3, 1.25
	}
	return Params{
		BallSpeedMin: clampSpeed(baseBallSpeedMin * ball),
		BallSpeedMax: clampSpeed(baseBallSpeedMax * ball),
		PaddleSpeed:  clampSpeed(basePaddleSpeed * paddle),
	}
}

// NewState seeds a match in the countdown phase with the ball parked at
// center and both paddles at rest.
func NewState(d Difficulty, now time.Time) *State {
	p := ParamsFor(d)
	centerY := (FieldHeight - PaddleHeight) / 2
	return &State{
		Ball: Ball{
			X:    FieldWidth / 2,
			Y:    FieldHeight / 2,
			Size: BallSize,
		},
		Paddles: Paddles{
			Left: Paddle{
				X:      PaddleInset,
				Y:      centerY,
				Width:  PaddleWidth,
				Height: PaddleHeight,
				Speed:  p.PaddleSpeed,
			},
			Right: Paddle{
				X:      FieldWidth - PaddleInset - PaddleWidth,
				Y:      centerY,
				Width:  PaddleWidth,
				Height: PaddleHeight,
				Speed:  p.PaddleSpeed,
			},
		},
		Phase:      state.PhaseCountdown,
		LastUpdate: now.UnixMilli(),
	}
}
