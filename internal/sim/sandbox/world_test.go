package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/status"
)

func newCourseWorld(t *testing.T) *World {
	t.Helper()
	w := NewWorld(Config{Seed: 7})
	if err := DefaultCourse().Apply(w); err != nil {
		t.Fatalf("apply: %v", err)
	}
	return w
}

func TestCastRayNearestHit(t *testing.T) {
	w := newCourseWorld(t)
	_ = w.AddBox(Box{ID: "near", Min: mgl64.Vec3{3, -1, 0}, Max: mgl64.Vec3{3.5, 1, 2}})

	res := w.CastRay(mgl64.Vec3{0, 0, 1}, mgl64.Vec3{10, 0, 1})
	if !res.Hit || res.HitID != "near" {
		t.Fatalf("res=%+v", res)
	}
	if !res.HitPoint.ApproxEqualThreshold(mgl64.Vec3{3, 0, 1}, 1e-9) {
		t.Fatalf("hit point=%v", res.HitPoint)
	}
	if res.Status.Failed() {
		t.Fatalf("status=%s", res.Status)
	}
}

func TestCastRayMissAndShortSegment(t *testing.T) {
	w := newCourseWorld(t)
	// Stops short of the wall at x=5.
	res := w.CastRay(mgl64.Vec3{0, 0, 1}, mgl64.Vec3{4, 0, 1})
	if res.Hit {
		t.Fatalf("unexpected hit %+v", res)
	}
	// Passes beside the wall.
	res = w.CastRay(mgl64.Vec3{0, 3, 1}, mgl64.Vec3{10, 3, 1})
	if res.Hit {
		t.Fatalf("unexpected hit %+v", res)
	}
}

func TestFloorIsWalkable(t *testing.T) {
	w := newCourseWorld(t)
	res := w.CastRay(mgl64.Vec3{0, 0, 1}, mgl64.Vec3{0, 0, -2})
	if !res.Hit || res.HitID != "floor" {
		t.Fatalf("res=%+v", res)
	}
	if !w.SurfaceWalkable("floor") || w.SurfaceWalkable("wall-1") || w.SurfaceWalkable("nope") {
		t.Fatalf("walkable flags wrong")
	}
}

func TestRayFaultInjection(t *testing.T) {
	w := newCourseWorld(t)
	w.FailRays(2, status.RaySimPerfLow)
	for i := 0; i < 2; i++ {
		if st := w.CastRay(mgl64.Vec3{}, mgl64.Vec3{1, 0, 1}).Status; st != status.RaySimPerfLow {
			t.Fatalf("cast %d status=%s", i, st)
		}
	}
	if st := w.CastRay(mgl64.Vec3{}, mgl64.Vec3{1, 0, 1}).Status; st.Failed() {
		t.Fatalf("fault should be consumed, got %s", st)
	}
	if w.Stats().Casts != 3 {
		t.Fatalf("casts=%d", w.Stats().Casts)
	}
}

func TestNavigateEmitsGoalReached(t *testing.T) {
	w := newCourseWorld(t)
	_ = w.AddAgent("a1", mgl64.Vec3{0, 3, 0}, 2)
	var got []PathUpdate
	w.OnPathUpdate(func(u PathUpdate) { got = append(got, u) })

	h := w.Host("a1")
	ctx := context.Background()
	if err := h.NavigateTo(ctx, mgl64.Vec3{4, 3, 0}, nil); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	for i := 0; i < 30; i++ {
		w.Step(0.1)
	}
	if len(got) != 1 || got[0].Code != status.HostGoalReached || got[0].AgentID != "a1" {
		t.Fatalf("updates=%+v", got)
	}
	st, _ := h.State(ctx)
	if st.Pos.Sub(mgl64.Vec3{4, 3, 0}).Len() > DefaultArriveRadius {
		t.Fatalf("pos=%v", st.Pos)
	}
	if st.Vel.Len() != 0 {
		t.Fatalf("vel=%v after arrival", st.Vel)
	}
}

func TestWallBlocksAgent(t *testing.T) {
	w := newCourseWorld(t)
	_ = w.AddAgent("a1", mgl64.Vec3{0, 0, 0}, 2)
	h := w.Host("a1")
	ctx := context.Background()
	_ = h.NavigateTo(ctx, mgl64.Vec3{10, 0, 0}, nil)
	for i := 0; i < 50; i++ {
		w.Step(0.1)
	}
	st, _ := h.State(ctx)
	if st.Pos[0] > 5 {
		t.Fatalf("walked through wall: %v", st.Pos)
	}
	if st.Vel.Len() != 0 {
		t.Fatalf("blocked agent reports vel=%v", st.Vel)
	}
}

func TestFrozenAgentIgnoresNudge(t *testing.T) {
	w := newCourseWorld(t)
	_ = w.AddAgent("a1", mgl64.Vec3{0, 0, 0}, 2)
	_ = w.SetFrozen("a1", true)
	h := w.Host("a1")
	ctx := context.Background()
	_ = h.Wander(ctx, mgl64.Vec3{}, mgl64.Vec3{4, 4, 0}, nil)
	w.Step(1)
	_ = h.Nudge(ctx, mgl64.Vec3{0.25, 0, 0})
	st, _ := h.State(ctx)
	if st.Pos != (mgl64.Vec3{}) {
		t.Fatalf("frozen agent moved to %v", st.Pos)
	}
	_ = w.SetFrozen("a1", false)
	_ = h.Nudge(ctx, mgl64.Vec3{0.25, 0, 0})
	st, _ = h.State(ctx)
	if st.Pos != (mgl64.Vec3{0.25, 0, 0}) {
		t.Fatalf("nudge pos=%v", st.Pos)
	}
}

func TestPursueTargetGone(t *testing.T) {
	w := newCourseWorld(t)
	_ = w.AddAgent("a1", mgl64.Vec3{0, 3, 0}, 2)
	_ = w.AddAgent("t1", mgl64.Vec3{5, 8, 0}, 1)
	var got []PathUpdate
	w.OnPathUpdate(func(u PathUpdate) { got = append(got, u) })
	h := w.Host("a1")
	if err := h.Pursue(context.Background(), "t1", nil); err != nil {
		t.Fatalf("pursue: %v", err)
	}
	w.Step(0.5)
	w.RemoveAgent("t1")
	w.Step(0.5)
	if len(got) != 1 || got[0].Code != status.HostFailureTargetGone {
		t.Fatalf("updates=%+v", got)
	}
	if err := h.Pursue(context.Background(), "t1", nil); err == nil {
		t.Fatalf("pursue of missing target should fail")
	}
}

func TestEvadeHiddenThenSpotted(t *testing.T) {
	w := newCourseWorld(t)
	_ = w.AddAgent("a1", mgl64.Vec3{0, 10, 0}, 4)
	_ = w.AddAgent("t1", mgl64.Vec3{0, 8, 0}, 1)
	var got []status.Host
	w.OnPathUpdate(func(u PathUpdate) {
		if u.AgentID == "a1" {
			got = append(got, u.Code)
		}
	})
	_ = w.Host("a1").Evade(context.Background(), "t1", nil)
	for i := 0; i < 40; i++ {
		w.Step(0.1)
	}
	_ = w.Place("t1", mgl64.Vec3{0, 18, 0})
	w.Step(0.1)
	if len(got) != 2 || got[0] != status.HostEvadeHidden || got[1] != status.HostEvadeSpotted {
		t.Fatalf("updates=%v", got)
	}
}

func TestFleeFromStopsAtDistance(t *testing.T) {
	w := newCourseWorld(t)
	_ = w.AddAgent("a1", mgl64.Vec3{-10, 10, 0}, 2)
	var got []PathUpdate
	w.OnPathUpdate(func(u PathUpdate) { got = append(got, u) })
	h := w.Host("a1")
	_ = h.FleeFrom(context.Background(), mgl64.Vec3{-10, 9, 0}, 4, nil)
	for i := 0; i < 40; i++ {
		w.Step(0.1)
	}
	st, _ := h.State(context.Background())
	if d := st.Pos.Sub(mgl64.Vec3{-10, 9, 0}).Len(); d < 4-1e-6 {
		t.Fatalf("flee distance=%f", d)
	}
	if len(got) != 1 || got[0].Code != status.HostGoalReached {
		t.Fatalf("updates=%+v", got)
	}
}

func TestInvalidGoalInsideWall(t *testing.T) {
	w := newCourseWorld(t)
	_ = w.AddAgent("a1", mgl64.Vec3{}, 2)
	var got []PathUpdate
	w.OnPathUpdate(func(u PathUpdate) { got = append(got, u) })
	_ = w.Host("a1").NavigateTo(context.Background(), mgl64.Vec3{5.2, 0, 0}, nil)
	w.Step(0.1)
	if len(got) != 1 || got[0].Code != status.HostFailureInvalidGoal {
		t.Fatalf("updates=%+v", got)
	}
}

func TestSegmentFeasible(t *testing.T) {
	w := newCourseWorld(t)
	if w.SegmentFeasible(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{10, 0, 0}, 1) {
		t.Fatalf("segment through wall reported feasible")
	}
	if !w.SegmentFeasible(mgl64.Vec3{0, 3, 0}, mgl64.Vec3{10, 3, 0}, 1) {
		t.Fatalf("segment beside wall reported infeasible")
	}
	if w.SegmentFeasible(mgl64.Vec3{0, 2.3, 0}, mgl64.Vec3{10, 2.3, 0}, 1) {
		t.Fatalf("segment grazing wall within half width reported feasible")
	}
}

func TestUnknownAgent(t *testing.T) {
	w := newCourseWorld(t)
	if _, err := w.Host("ghost").State(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if err := w.AddAgent("a1", mgl64.Vec3{}, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.AddAgent("a1", mgl64.Vec3{}, 1); err == nil {
		t.Fatalf("duplicate agent accepted")
	}
	var _ movement.Host = w.Host("a1")
}

func TestLoadCourse(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "course.yaml")
	body := `boxes:
  - id: floor
    min: [-10, -10, -1]
    max: [10, 10, 0]
    walkable: true
  - id: crate
    min: [2, -1, 0]
    max: [3, 1, 1]
agents:
  - id: a1
    pos: [0, 0, 0]
    speed: 1.5
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadCourse(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	w := NewWorld(Config{})
	if err := c.Apply(w); err != nil {
		t.Fatalf("apply: %v", err)
	}
	st := w.Stats()
	if st.Boxes != 2 || st.Agents != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if res := w.CastRay(mgl64.Vec3{0, 0, 0.5}, mgl64.Vec3{5, 0, 0.5}); res.HitID != "crate" {
		t.Fatalf("res=%+v", res)
	}
	if _, err := LoadCourse(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
