package navtest

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/avoid"
	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/probe"
	"strider.ai/internal/sim/sandbox"
)

// StepDT is the world integration step the harness clock uses.
const StepDT = 100 * time.Millisecond

// Harness drives one agent in a sandbox world through the supervisor and
// planner with a simulated clock:
// - Sleep on the clock steps the world, so unstick waits see real motion
// - path updates are queued and delivered by Pump, never re-entrantly
// - Reports collects every callback the supervisor makes
type Harness struct {
	T       *testing.T
	W       *sandbox.World
	Host    *sandbox.AgentHost
	Clock   *Clock
	Sup     *movement.Supervisor
	Planner *avoid.Planner
	Reports []movement.Report

	queue []sandbox.PathUpdate
}

func NewHarness(t *testing.T, course sandbox.Course, agentID string, start mgl64.Vec3, cfg movement.Config) *Harness {
	t.Helper()
	w := sandbox.NewWorld(sandbox.Config{Seed: 42})
	if err := course.Apply(w); err != nil {
		t.Fatalf("course: %v", err)
	}
	if err := w.AddAgent(agentID, start, 2); err != nil {
		t.Fatalf("agent: %v", err)
	}
	h := &Harness{
		T:     t,
		W:     w,
		Host:  w.Host(agentID),
		Clock: &Clock{W: w, now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	w.OnPathUpdate(func(u sandbox.PathUpdate) {
		if u.AgentID == agentID {
			h.queue = append(h.queue, u)
		}
	})
	h.Sup = movement.NewSupervisor(agentID, h.Host, cfg,
		movement.WithClock(h.Clock),
		movement.WithCallback(func(r movement.Report) { h.Reports = append(h.Reports, r) }),
		movement.WithRand(rand.New(rand.NewSource(3))),
	)
	rays := probe.NewRetryCaster(h.Host, probe.DefaultRetries, 0, nil)
	h.Planner = avoid.NewPlanner(probe.NewScanner(rays, probe.DefaultGroundClearance), h.Host, avoid.Config{}, nil)
	return h
}

// Pump delivers queued path updates to the supervisor.
func (h *Harness) Pump(ctx context.Context) {
	q := h.queue
	h.queue = nil
	for _, u := range q {
		h.Sup.HandleHostStatus(ctx, u.Code)
	}
}

// Second advances one second of world time, delivers updates and ticks.
func (h *Harness) Second(ctx context.Context) {
	_ = h.Clock.Sleep(ctx, time.Second)
	h.Pump(ctx)
	h.Sup.Tick(ctx)
}

// RunUntilIdle ticks once per second until the supervisor goes idle or limit
// seconds pass.
func (h *Harness) RunUntilIdle(ctx context.Context, limit int) {
	h.T.Helper()
	for i := 0; i < limit && h.Sup.Mode() != movement.Off; i++ {
		h.Second(ctx)
	}
}

func (h *Harness) Terminal() []movement.Report {
	var out []movement.Report
	for _, r := range h.Reports {
		if r.Terminal {
			out = append(out, r)
		}
	}
	return out
}

func (h *Harness) Pos() mgl64.Vec3 {
	st, err := h.Host.State(context.Background())
	if err != nil {
		h.T.Fatalf("state: %v", err)
	}
	return st.Pos
}

// Clock is a movement.Clock whose Sleep steps the world.
type Clock struct {
	W   *sandbox.World
	now time.Time
}

func (c *Clock) Now() time.Time { return c.now }

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	for d > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := StepDT
		if d < step {
			step = d
		}
		c.W.Step(step.Seconds())
		c.now = c.now.Add(step)
		d -= step
	}
	return ctx.Err()
}
