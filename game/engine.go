package game

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/wfunc/pongserver/state"
)

// WinPolicy decides when a match is over. Score is the threshold; ByTwo
// additionally requires a two point lead.
type WinPolicy struct {
	Score int
	ByTwo bool
}

// Engine advances one room's simulation. All mutation goes through the
// engine's lock: the tick loop and paddle input arrive from different
// goroutines.
type Engine struct {
	st     *State
	params Params
	policy WinPolicy
	rng    *rand.Rand
	mutex  sync.Mutex
}

// NewEngine creates a simulation for one match.
func NewEngine(d Difficulty, policy WinPolicy, now time.Time) *Engine {
	return &Engine{
		st:     NewState(d, now),
		params: ParamsFor(d),
		policy: policy,
		rng:    rand.New(rand.NewSource(now.UnixNano())),
	}
}

// Start flips the simulation into the playing phase, clears residual
// paddle motion and serves the first ball.
func (e *Engine) Start(now time.Time) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.st.Phase = state.PhasePlaying
	e.st.Countdown = 0
	e.st.Paddles.Left.Moving = false
	e.st.Paddles.Right.Moving = false
	e.st.LastUpdate = now.UnixMilli()
	e.serve(SideLeft)
	if e.rng.Intn(2) == 0 {
		e.st.Ball.VX = -e.st.Ball.VX
	}
}

// SetCountdown records the countdown value shown to players.
func (e *Engine) SetCountdown(n int) {
	e.mutex.Lock()
	e.st.Countdown = n
	e.mutex.Unlock()
}

// SetPaddleInput applies a paddleMove/paddleStop input. Ignored unless
// the match is playing.
func (e *Engine) SetPaddleInput(side Side, moving bool, direction string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.st.Phase != state.PhasePlaying {
		return
	}
	p := e.paddle(side)
	p.Moving = moving
	if moving {
		p.Direction = direction
	}
}

// Snapshot returns a copy of the current state for serialization.
func (e *Engine) Snapshot() State {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return *e.st
}

// Tick advances the simulation to now and returns the state copy plus
// whether the win condition was reached on this tick.
func (e *Engine) Tick(now time.Time) (State, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.st.Phase != state.PhasePlaying {
		return *e.st, false
	}

	// Raw wall-clock delta; a scheduling stall yields one large step.
	dt := float64(now.UnixMilli()-e.st.LastUpdate) / 1000.0
	e.st.LastUpdate = now.UnixMilli()
	if dt <= 0 {
		return *e.st, false
	}

	e.movePaddle(&e.st.Paddles.Left, dt)
	e.movePaddle(&e.st.Paddles.Right, dt)

	e.st.Ball.X += e.st.Ball.VX * dt
	e.st.Ball.Y += e.st.Ball.VY * dt

	e.collideWalls()
	e.collidePaddles()

	if scorer, scored := e.checkGoal(); scored {
		opponent := SideLeft
		if scorer == SideLeft {
			opponent = SideRight
		}
		e.paddle(scorer).Score++
		e.st.LastScorer = scorer
		if e.wins(e.paddle(scorer).Score, e.paddle(opponent).Score) {
			e.st.Phase = state.PhaseFinished
			e.st.WinnerSide = scorer
			return *e.st, true
		}
		e.serve(scorer)
	}

	return *e.st, false
}

func (e *Engine) paddle(side Side) *Paddle {
	if side == SideLeft {
		return &e.st.Paddles.Left
	}
	return &e.st.Paddles.Right
}

func (e *Engine) movePaddle(p *Paddle, dt float64) {
	if !p.Moving {
		return
	}
	dir := 1.0
	if p.Direction == DirectionUp {
		dir = -1.0
	}
	p.Y += dir * p.Speed * dt

	if p.Y < BoundaryGap {
		p.Y = BoundaryGap
	}
	if max := FieldHeight - p.Height - BoundaryGap; p.Y > max {
		p.Y = max
	}
}

func (e *Engine) collideWalls() {
	b := &e.st.Ball
	half := b.Size / 2
	if b.Y-half < 0 {
		b.Y = half
		b.VY = -b.VY
	} else if b.Y+half > FieldHeight {
		b.Y = FieldHeight - half
		b.VY = -b.VY
	}
}

// collidePaddles only tests the paddle the ball is moving toward.
func (e *Engine) collidePaddles() {
	b := &e.st.Ball
	switch {
	case b.VX < 0:
		e.bounceOff(&e.st.Paddles.Left, SideLeft)
	case b.VX > 0:
		e.bounceOff(&e.st.Paddles.Right, SideRight)
	}
}

func (e *Engine) bounceOff(p *Paddle, side Side) {
	b := &e.st.Ball
	half := b.Size / 2

	if b.X-half > p.X+p.Width || b.X+half < p.X ||
		b.Y-half > p.Y+p.Height || b.Y+half < p.Y {
		return
	}

	// Hit offset from paddle center, -1..1, caps the bounce at 45 degrees.
	offset := (b.Y - (p.Y + p.Height/2)) / (p.Height / 2)
	if offset > 1 {
		offset = 1
	} else if offset < -1 {
		offset = -1
	}
	angle := offset * MaxBounceAngle

	speed := math.Hypot(b.VX, b.VY) * SpeedIncrease
	if speed > e.params.BallSpeedMax {
		speed = e.params.BallSpeedMax
	}
	if speed < e.params.BallSpeedMin {
		speed = e.params.BallSpeedMin
	}

	// Reposition just outside the paddle face to prevent sticking.
	if side == SideLeft {
		b.X = p.X + p.Width + half
		b.VX = speed * math.Cos(angle)
	} else {
		b.X = p.X - half
		b.VX = -speed * math.Cos(angle)
	}
	b.VY = speed * math.Sin(angle)
}

func (e *Engine) checkGoal() (Side, bool) {
	b := &e.st.Ball
	half := b.Size / 2
	if b.X-half <= 0 {
		return SideRight, true
	}
	if b.X+half >= FieldWidth {
		return SideLeft, true
	}
	return "", false
}

func (e *Engine) wins(score, opponent int) bool {
	if score < e.policy.Score {
		return false
	}
	if e.policy.ByTwo && score-opponent < 2 {
		return false
	}
	return true
}

// serve resets the ball to center, heading toward the side that just
// scored, at the difficulty's minimum speed with a small random angle.
func (e *Engine) serve(toward Side) {
	b := &e.st.Ball
	b.X = FieldWidth / 2
	b.Y = FieldHeight / 2

	angle := (e.rng.Float64()*2 - 1) * MaxBounceAngle
	speed := e.params.BallSpeedMin
	b.VX = speed * math.Cos(angle)
	b.VY = speed * math.Sin(angle)
	if toward == SideLeft {
		b.VX = -b.VX
	}
}
