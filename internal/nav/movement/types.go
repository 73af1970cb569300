package movement

import (
	"context"
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/status"
)

var (
	ErrNoActiveMode     = errors.New("no active movement mode")
	ErrInvalidTolerance = errors.New("tolerance must be positive")
	ErrEmptyTarget      = errors.New("empty target id")
)

// Options is an opaque option list handed through to the host verb.
type Options map[string]any

// AgentState is the kinematic state the host reports for the agent.
type AgentState struct {
	Pos    mgl64.Vec3
	Vel    mgl64.Vec3
	AngVel mgl64.Vec3
}

// Host is the movement capability of the host platform.
type Host interface {
	NavigateTo(ctx context.Context, goal mgl64.Vec3, opts Options) error
	Pursue(ctx context.Context, target string, opts Options) error
	Wander(ctx context.Context, center, spread mgl64.Vec3, opts Options) error
	Evade(ctx context.Context, target string, opts Options) error
	FleeFrom(ctx context.Context, from mgl64.Vec3, distance float64, opts Options) error
	StopMovement(ctx context.Context) error

	State(ctx context.Context) (AgentState, error)
	TargetPosition(ctx context.Context, target string) (mgl64.Vec3, bool, error)
	// Nudge forces a small positional displacement, bypassing the movement verbs.
	Nudge(ctx context.Context, offset mgl64.Vec3) error
}

// Clock drives all timing. Sleep must return early when ctx is done.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request is the single live movement intent.
type Request struct {
	Mode      Mode
	Goal      mgl64.Vec3
	Target    string
	Spread    mgl64.Vec3
	Distance  float64
	Options   Options
	Tolerance float64

	RequestStart time.Time
	ActionStart  time.Time
	Restarts     int
}

// Report is delivered to the caller's callback. Terminal reports end the request;
// pass-through reports leave it running.
type Report struct {
	AgentID  string
	Mode     Mode
	Code     status.Code
	Terminal bool
	At       time.Time
	Pos      mgl64.Vec3
}

type Callback func(Report)

// Event is the persisted form of a report.
type Event struct {
	Time      time.Time   `json:"time"`
	AgentID   string      `json:"agent_id"`
	Mode      string      `json:"mode"`
	Code      status.Code `json:"code"`
	Terminal  bool        `json:"terminal"`
	Pos       [3]float64  `json:"pos"`
	Goal      [3]float64  `json:"goal"`
	Target    string      `json:"target,omitempty"`
	Restarts  int         `json:"restarts"`
	ElapsedMS int64       `json:"elapsed_ms"`
}

// Recorder persists events. Implementations must not block the caller.
type Recorder interface {
	RecordOutcome(ev Event) error
}

// Stats counts supervisor activity since construction.
type Stats struct {
	Starts          int
	Stops           int
	Restarts        int
	Retries         int
	Unsticks        int
	UnstickFailures int
	Canceled        int
	Misuse          int
	Outcomes        map[status.Code]int
}

type Config struct {
	StallTimeout  time.Duration
	StartupGrace  time.Duration
	MotionEpsilon float64

	// Unstick recovery.
	MoveEpsilon   float64
	UnstickSpread float64
	UnstickWait   time.Duration
	UnstickSettle time.Duration
	NudgeDistance float64

	// No-progress detector; disabled while ProgressWindow is zero.
	ProgressWindow      time.Duration
	ProgressMinDistance float64

	Seed int64
}

func DefaultConfig() Config {
	return Config{
		StallTimeout:  120 * time.Second,
		StartupGrace:  2 * time.Second,
		MotionEpsilon: 0.01,
		MoveEpsilon:   0.01,
		UnstickSpread: 1.0,
		UnstickWait:   time.Second,
		UnstickSettle: 500 * time.Millisecond,
		NudgeDistance: 0.25,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StallTimeout <= 0 {
		c.StallTimeout = d.StallTimeout
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = d.StartupGrace
	}
	if c.MotionEpsilon <= 0 {
		c.MotionEpsilon = d.MotionEpsilon
	}
	if c.MoveEpsilon <= 0 {
		c.MoveEpsilon = d.MoveEpsilon
	}
	if c.UnstickSpread <= 0 {
		c.UnstickSpread = d.UnstickSpread
	}
	if c.UnstickWait < 0 {
		c.UnstickWait = d.UnstickWait
	}
	if c.UnstickSettle < 0 {
		c.UnstickSettle = d.UnstickSettle
	}
	if c.NudgeDistance <= 0 {
		c.NudgeDistance = d.NudgeDistance
	}
	return c
}
