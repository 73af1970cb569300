// Package sandbox is an in-process host: a world of axis-aligned boxes and
// point agents that answers rays and runs the movement verbs with simple
// kinematics. It can inject the faults real hosts show (load-shed rays,
// agents that cannot move, false arrivals) so the supervisor can be exercised
// end to end.
package sandbox

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/status"
)

var (
	ErrUnknownAgent = errors.New("unknown agent")
	ErrDuplicateID  = errors.New("duplicate id")
)

const (
	DefaultArriveRadius = 0.25
	DefaultSpeed        = 2.0
	// evadeRange is how far an evading agent must get before it counts as hidden.
	evadeRange = 10.0
	// pursueStandoff is where a pursuing agent stops short of its target.
	pursueStandoff = 0.5
)

// Box is an axis-aligned obstacle. Walkable boxes (floors, ramps) never block.
type Box struct {
	ID       string
	Min, Max mgl64.Vec3
	Walkable bool
}

func (b Box) contains(p mgl64.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// PathUpdate is an asynchronous movement status the world raises for an agent.
type PathUpdate struct {
	AgentID string
	Code    status.Host
}

type agent struct {
	id     string
	pos    mgl64.Vec3
	vel    mgl64.Vec3
	angVel mgl64.Vec3
	speed  float64

	verb     movement.Mode
	goal     mgl64.Vec3
	target   string
	spread   mgl64.Vec3
	distance float64
	waypoint *mgl64.Vec3
	hidden   bool

	frozen       bool
	nudgeBlocked bool
	falseArrival bool
}

type Config struct {
	ArriveRadius float64
	// AgentHeight is the height of the point the world tests against boxes.
	AgentHeight float64
	Seed        int64
}

type World struct {
	mu     sync.Mutex
	cfg    Config
	boxes  []Box
	byID   map[string]int
	agents map[string]*agent
	rng    *rand.Rand

	rayFaults  int
	rayFault   status.Ray
	casts      int
	stepCount  uint64
	onUpdate   func(PathUpdate)
	pending    []PathUpdate
	escalation int
}

func NewWorld(cfg Config) *World {
	if cfg.ArriveRadius <= 0 {
		cfg.ArriveRadius = DefaultArriveRadius
	}
	if cfg.AgentHeight <= 0 {
		cfg.AgentHeight = 0.5
	}
	return &World{
		cfg:    cfg,
		byID:   map[string]int{},
		agents: map[string]*agent{},
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// OnPathUpdate installs the sink for path updates raised by Step. It is called
// without the world lock held.
func (w *World) OnPathUpdate(fn func(PathUpdate)) {
	w.mu.Lock()
	w.onUpdate = fn
	w.mu.Unlock()
}

func (w *World) AddBox(b Box) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byID[b.ID]; ok {
		return fmt.Errorf("box %s: %w", b.ID, ErrDuplicateID)
	}
	for i := 0; i < 3; i++ {
		if b.Min[i] > b.Max[i] {
			b.Min[i], b.Max[i] = b.Max[i], b.Min[i]
		}
	}
	w.byID[b.ID] = len(w.boxes)
	w.boxes = append(w.boxes, b)
	return nil
}

func (w *World) RemoveBox(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.byID[id]
	if !ok {
		return false
	}
	w.boxes = append(w.boxes[:i], w.boxes[i+1:]...)
	delete(w.byID, id)
	for j := i; j < len(w.boxes); j++ {
		w.byID[w.boxes[j].ID] = j
	}
	return true
}

func (w *World) AddAgent(id string, pos mgl64.Vec3, speed float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.agents[id]; ok {
		return fmt.Errorf("agent %s: %w", id, ErrDuplicateID)
	}
	if speed <= 0 {
		speed = DefaultSpeed
	}
	w.agents[id] = &agent{id: id, pos: pos, speed: speed}
	return nil
}

func (w *World) RemoveAgent(id string) {
	w.mu.Lock()
	delete(w.agents, id)
	w.mu.Unlock()
}

func (w *World) AgentIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.agents))
	for id := range w.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FailRays makes the next n casts return st instead of a real answer.
func (w *World) FailRays(n int, st status.Ray) {
	w.mu.Lock()
	w.rayFaults = n
	w.rayFault = st
	w.mu.Unlock()
}

// SetFrozen makes an agent accept commands but never move.
func (w *World) SetFrozen(id string, frozen bool) error {
	return w.withAgent(id, func(a *agent) { a.frozen = frozen })
}

func (w *World) SetNudgeBlocked(id string, blocked bool) error {
	return w.withAgent(id, func(a *agent) { a.nudgeBlocked = blocked })
}

// SetFalseArrival makes the next NavigateTo report goal reached on the first step
// regardless of position.
func (w *World) SetFalseArrival(id string, on bool) error {
	return w.withAgent(id, func(a *agent) { a.falseArrival = on })
}

func (w *World) Place(id string, pos mgl64.Vec3) error {
	return w.withAgent(id, func(a *agent) { a.pos = pos })
}

func (w *World) withAgent(id string, fn func(a *agent)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, ErrUnknownAgent)
	}
	fn(a)
	return nil
}

// Stats is a point-in-time view for metrics.
type Stats struct {
	Agents      int
	Boxes       int
	Casts       int
	Steps       uint64
	Escalations int
}

func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Agents:      len(w.agents),
		Boxes:       len(w.boxes),
		Casts:       w.casts,
		Steps:       w.stepCount,
		Escalations: w.escalation,
	}
}

// NoteEscalation counts a hand-off to the global solver.
func (w *World) NoteEscalation() {
	w.mu.Lock()
	w.escalation++
	w.mu.Unlock()
}

// blocked reports whether an agent standing at p would be inside a solid box.
func (w *World) blocked(p mgl64.Vec3) (string, bool) {
	probe := p.Add(mgl64.Vec3{0, 0, w.cfg.AgentHeight})
	for _, b := range w.boxes {
		if b.Walkable {
			continue
		}
		if b.contains(probe) {
			return b.ID, true
		}
	}
	return "", false
}

// Step advances every agent by dt seconds and delivers the path updates raised.
func (w *World) Step(dt float64) {
	w.mu.Lock()
	w.stepCount++
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		w.stepAgent(w.agents[id], dt)
	}
	updates := w.pending
	w.pending = nil
	fn := w.onUpdate
	w.mu.Unlock()

	if fn == nil {
		return
	}
	for _, u := range updates {
		fn(u)
	}
}

func (w *World) emit(a *agent, code status.Host) {
	w.pending = append(w.pending, PathUpdate{AgentID: a.id, Code: code})
}

func (w *World) halt(a *agent) {
	a.verb = movement.Off
	a.vel = mgl64.Vec3{}
	a.angVel = mgl64.Vec3{}
	a.waypoint = nil
}

func (w *World) stepAgent(a *agent, dt float64) {
	if a.verb == movement.Off {
		a.vel = mgl64.Vec3{}
		a.angVel = mgl64.Vec3{}
		return
	}
	var dest mgl64.Vec3
	switch a.verb {
	case movement.NavigateTo:
		if a.falseArrival {
			a.falseArrival = false
			w.emit(a, status.HostGoalReached)
			w.halt(a)
			return
		}
		if _, bad := w.blocked(a.goal); bad {
			w.emit(a, status.HostFailureInvalidGoal)
			w.halt(a)
			return
		}
		if horizontal(a.goal.Sub(a.pos)) <= w.cfg.ArriveRadius {
			w.emit(a, status.HostGoalReached)
			w.halt(a)
			return
		}
		dest = a.goal
	case movement.Pursue:
		t, ok := w.agents[a.target]
		if !ok {
			w.emit(a, status.HostFailureTargetGone)
			w.halt(a)
			return
		}
		if horizontal(t.pos.Sub(a.pos)) <= pursueStandoff {
			a.vel = mgl64.Vec3{}
			return
		}
		dest = t.pos
	case movement.Wander:
		if a.waypoint == nil || horizontal(a.waypoint.Sub(a.pos)) <= w.cfg.ArriveRadius {
			wp := a.goal.Add(mgl64.Vec3{
				(w.rng.Float64() - 0.5) * a.spread[0],
				(w.rng.Float64() - 0.5) * a.spread[1],
				0,
			})
			wp[2] = a.pos[2]
			a.waypoint = &wp
		}
		dest = *a.waypoint
	case movement.Evade:
		t, ok := w.agents[a.target]
		if !ok {
			w.emit(a, status.HostFailureTargetGone)
			w.halt(a)
			return
		}
		away := a.pos.Sub(t.pos)
		away[2] = 0
		far := away.Len() > evadeRange
		if far && !a.hidden {
			a.hidden = true
			w.emit(a, status.HostEvadeHidden)
		} else if !far && a.hidden {
			a.hidden = false
			w.emit(a, status.HostEvadeSpotted)
		}
		if far {
			a.vel = mgl64.Vec3{}
			return
		}
		if away.Len() < 1e-9 {
			away = mgl64.Vec3{1, 0, 0}
		}
		dest = a.pos.Add(away.Normalize().Mul(a.speed))
	case movement.FleeFrom:
		away := a.pos.Sub(a.goal)
		away[2] = 0
		if away.Len() >= a.distance-1e-6 {
			w.emit(a, status.HostGoalReached)
			w.halt(a)
			return
		}
		if away.Len() < 1e-9 {
			away = mgl64.Vec3{1, 0, 0}
		}
		dest = a.goal.Add(away.Normalize().Mul(a.distance))
	}
	w.advance(a, dest, dt)
}

// advance moves a toward dest at its speed. A solid box in the way stops it dead.
func (w *World) advance(a *agent, dest mgl64.Vec3, dt float64) {
	if a.frozen {
		a.vel = mgl64.Vec3{}
		a.angVel = mgl64.Vec3{}
		return
	}
	d := dest.Sub(a.pos)
	d[2] = 0
	dist := d.Len()
	if dist < 1e-9 {
		a.vel = mgl64.Vec3{}
		return
	}
	step := math.Min(a.speed*dt, dist)
	next := a.pos.Add(d.Normalize().Mul(step))
	if _, hit := w.blocked(next); hit {
		a.vel = mgl64.Vec3{}
		a.angVel = mgl64.Vec3{}
		return
	}
	if dt > 0 {
		a.vel = next.Sub(a.pos).Mul(1 / dt)
	}
	a.pos = next
}

func horizontal(v mgl64.Vec3) float64 {
	return math.Hypot(v[0], v[1])
}

// command replaces an agent's active verb.
func (w *World) command(id string, fn func(a *agent)) error {
	return w.withAgent(id, func(a *agent) {
		a.waypoint = nil
		a.hidden = false
		fn(a)
	})
}

func (w *World) stop(id string) error {
	return w.withAgent(id, func(a *agent) { w.halt(a) })
}

func (w *World) nudge(id string, offset mgl64.Vec3) error {
	return w.withAgent(id, func(a *agent) {
		if a.nudgeBlocked || a.frozen {
			return
		}
		next := a.pos.Add(offset)
		if _, hit := w.blocked(next); hit {
			return
		}
		a.pos = next
	})
}

func (w *World) state(id string) (movement.AgentState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[id]
	if !ok {
		return movement.AgentState{}, fmt.Errorf("agent %s: %w", id, ErrUnknownAgent)
	}
	return movement.AgentState{Pos: a.pos, Vel: a.vel, AngVel: a.angVel}, nil
}

func (w *World) position(id string) (mgl64.Vec3, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[id]
	if !ok {
		return mgl64.Vec3{}, false
	}
	return a.pos, true
}
