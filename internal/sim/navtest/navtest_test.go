package navtest

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/status"
	"strider.ai/internal/sim/sandbox"
)

func TestNavigateOpenGround(t *testing.T) {
	h := NewHarness(t, sandbox.DefaultCourse(), "a1", mgl64.Vec3{0, 5, 0}, movement.Config{})
	ctx := context.Background()
	if err := h.Sup.StartNavigateTo(ctx, mgl64.Vec3{6, 5, 0}, 0.5, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.RunUntilIdle(ctx, 30)

	term := h.Terminal()
	if len(term) != 1 || term[0].Code != status.CodeGoalReached {
		t.Fatalf("terminal=%+v", term)
	}
	if d := h.Pos().Sub(mgl64.Vec3{6, 5, 0}).Len(); d > 0.5 {
		t.Fatalf("ended %f from goal", d)
	}
	// Further ticks stay silent.
	h.Second(ctx)
	if len(h.Terminal()) != 1 {
		t.Fatalf("extra terminal reports: %+v", h.Reports)
	}
}

func TestDetourAroundWall(t *testing.T) {
	h := NewHarness(t, sandbox.DefaultCourse(), "a1", mgl64.Vec3{0, 0, 0}, movement.Config{})
	ctx := context.Background()
	start, goal := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{10, 0, 0}

	if h.Planner.IsSegmentClear(ctx, start, goal, 1, 2, "") {
		t.Fatalf("direct segment through wall reported clear")
	}
	path := h.Planner.PlanAvoidance(ctx, start, goal, 1, 2, "")
	if len(path) != 4 {
		t.Fatalf("path=%v", path)
	}
	if path[1][1] >= 0 {
		t.Fatalf("expected right-hand (negative y) detour, got %v", path)
	}
	for i := 0; i+1 < len(path); i++ {
		if !h.Planner.IsSegmentClear(ctx, path[i], path[i+1], 1, 2, "") {
			t.Fatalf("leg %d %v -> %v not clear", i, path[i], path[i+1])
		}
	}

	for _, wp := range path[1:] {
		if err := h.Sup.StartNavigateTo(ctx, wp, 0.5, nil); err != nil {
			t.Fatalf("start: %v", err)
		}
		h.RunUntilIdle(ctx, 60)
		term := h.Terminal()
		if len(term) == 0 || term[len(term)-1].Code != status.CodeGoalReached {
			t.Fatalf("leg to %v: terminal=%+v", wp, term)
		}
	}
	if d := h.Pos().Sub(goal).Len(); d > 0.5 {
		t.Fatalf("ended %f from goal", d)
	}
	if n := len(h.Terminal()); n != 3 {
		t.Fatalf("terminal reports=%d want one per leg", n)
	}
}

func TestFrozenAgentCannotMove(t *testing.T) {
	h := NewHarness(t, sandbox.DefaultCourse(), "a1", mgl64.Vec3{0, 5, 0}, movement.Config{})
	ctx := context.Background()
	_ = h.W.SetFrozen("a1", true)
	_ = h.Sup.StartNavigateTo(ctx, mgl64.Vec3{10, 5, 0}, 0.5, nil)
	h.RunUntilIdle(ctx, 30)

	term := h.Terminal()
	if len(term) != 1 || term[0].Code != status.CodeCannotMove {
		t.Fatalf("terminal=%+v", term)
	}
	if h.Sup.Mode() != movement.Off {
		t.Fatalf("mode=%s", h.Sup.Mode())
	}
	if st := h.Sup.Stats(); st.Unsticks != 1 || st.UnstickFailures != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestFalseArrivalIsNotTrusted(t *testing.T) {
	h := NewHarness(t, sandbox.DefaultCourse(), "a1", mgl64.Vec3{0, 5, 0}, movement.Config{})
	ctx := context.Background()
	_ = h.W.SetFalseArrival("a1", true)
	_ = h.Sup.StartNavigateTo(ctx, mgl64.Vec3{6, 5, 0}, 0.5, nil)

	h.Second(ctx)
	if len(h.Terminal()) != 0 {
		t.Fatalf("false arrival accepted: %+v", h.Reports)
	}
	if h.Sup.Mode() != movement.NavigateTo {
		t.Fatalf("mode=%s", h.Sup.Mode())
	}
	h.RunUntilIdle(ctx, 30)
	term := h.Terminal()
	if len(term) != 1 || term[0].Code != status.CodeGoalReached {
		t.Fatalf("terminal=%+v", term)
	}
	if st := h.Sup.Stats(); st.Unsticks < 1 || st.Restarts < 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestPursueReachesTarget(t *testing.T) {
	h := NewHarness(t, sandbox.DefaultCourse(), "a1", mgl64.Vec3{0, 5, 0}, movement.Config{})
	ctx := context.Background()
	_ = h.W.AddAgent("t1", mgl64.Vec3{8, 8, 0}, 1)
	if err := h.Sup.StartPursue(ctx, "t1", 1.0, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.RunUntilIdle(ctx, 30)
	term := h.Terminal()
	if len(term) != 1 || term[0].Code != status.CodeGoalReached || term[0].Mode != movement.Pursue {
		t.Fatalf("terminal=%+v", term)
	}
}

func TestTransientRayFaultsAbsorbed(t *testing.T) {
	h := NewHarness(t, sandbox.DefaultCourse(), "a1", mgl64.Vec3{0, 5, 0}, movement.Config{})
	ctx := context.Background()
	a, b := mgl64.Vec3{0, 5, 0}, mgl64.Vec3{6, 5, 0}

	h.W.FailRays(5, status.RaySimPerfLow)
	if !h.Planner.IsSegmentClear(ctx, a, b, 1, 2, "") {
		t.Fatalf("transient faults should be retried away")
	}
	h.W.FailRays(10, status.RaySimPerfLow)
	if h.Planner.IsSegmentClear(ctx, a, b, 1, 2, "") {
		t.Fatalf("exhausted retries must not read as clear")
	}
}

func TestHostFailureForwarded(t *testing.T) {
	h := NewHarness(t, sandbox.DefaultCourse(), "a1", mgl64.Vec3{0, 0, 0}, movement.Config{})
	ctx := context.Background()
	_ = h.Sup.StartNavigateTo(ctx, mgl64.Vec3{5.2, 0, 0}, 0.5, nil)
	h.RunUntilIdle(ctx, 5)
	term := h.Terminal()
	if len(term) != 1 || term[0].Code != status.CodeInvalidGoal {
		t.Fatalf("terminal=%+v", term)
	}
}
