package main

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/bridge"
	"strider.ai/internal/nav/avoid"
	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/status"
	"strider.ai/internal/sim/sandbox"
	"strider.ai/internal/transport/ws"
	"strider.ai/internal/tuning"
)

type memRecorder struct{ events chan movement.Event }

func (m *memRecorder) RecordOutcome(e movement.Event) error {
	select {
	case m.events <- e:
	default:
	}
	return nil
}

func newRunner(t *testing.T, ctx context.Context, course sandbox.Course) (*runner, *sandbox.World, *memRecorder) {
	t.Helper()
	w := sandbox.NewWorld(sandbox.Config{Seed: 1})
	if err := course.Apply(w); err != nil {
		t.Fatalf("course: %v", err)
	}
	hs := httptest.NewServer(ws.NewServer(w, 10, nil).Handler())
	t.Cleanup(hs.Close)

	sess := bridge.NewSession(bridge.SessionConfig{Key: "bot", URL: "ws" + strings.TrimPrefix(hs.URL, "http")}, nil)
	sess.Start()
	t.Cleanup(sess.Close)
	readyCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sess.WaitReady(readyCtx); err != nil {
		t.Fatalf("ready: %v", err)
	}

	go func() {
		tk := time.NewTicker(10 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				w.Step(0.05)
			}
		}
	}()

	tune := tuning.Defaults()
	tune.Probe.RetryDelayMs = 0
	quiet := log.New(io.Discard, "", 0)
	rec := &memRecorder{events: make(chan movement.Event, 64)}
	return &runner{
		name:      "bot",
		link:      sess,
		sup:       movement.NewSupervisor(sess.AgentID(), sess, tune.MovementConfig(), movement.WithRecorder(rec)),
		planner:   avoid.NewPlanner(tune.NewScanner(sess, quiet), nil, tune.AvoidConfig(), quiet),
		log:       quiet,
		width:     tune.Avoid.AgentWidth,
		height:    tune.Avoid.AgentHeight,
		tolerance: 0.5,
		tick:      50 * time.Millisecond,
	}, w, rec
}

func TestRunnerDetoursAroundWall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	r, _, rec := newRunner(t, ctx, sandbox.DefaultCourse())

	code, err := r.runGoal(ctx, mgl64.Vec3{10, 0, 0})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != status.CodeGoalReached {
		t.Fatalf("code=%s", code)
	}
	st, err := r.link.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if d := st.Pos.Sub(mgl64.Vec3{10, 0, 0}).Len(); d > 0.5 {
		t.Fatalf("ended %f from goal at %v", d, st.Pos)
	}
	if got := r.sup.Stats().Outcomes[status.CodeGoalReached]; got != 3 {
		t.Fatalf("leg outcomes=%d want 3", got)
	}
	select {
	case e := <-rec.events:
		if e.Code != status.CodeGoalReached || !e.Terminal {
			t.Fatalf("event=%+v", e)
		}
	default:
		t.Fatalf("no recorded outcome")
	}
}

func TestRunnerEscalatesWhenBoxedIn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	course := sandbox.Course{Boxes: []sandbox.CourseBox{
		{ID: "floor", Min: [3]float64{-50, -50, -1}, Max: [3]float64{50, 50, 0}, Walkable: true},
		{ID: "long-wall", Min: [3]float64{5, -30, 0}, Max: [3]float64{5.5, 30, 3}},
	}}
	r, w, _ := newRunner(t, ctx, course)

	code, err := r.runGoal(ctx, mgl64.Vec3{10, 0, 0})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != status.CodeUnreachable {
		t.Fatalf("code=%s", code)
	}
	if w.Stats().Escalations != 1 {
		t.Fatalf("stats=%+v", w.Stats())
	}
	if r.sup.Mode() != movement.Off {
		t.Fatalf("supervisor started without a plan")
	}
}

func TestParseGoals(t *testing.T) {
	g, err := parseGoals(" 10,0,0 ; 1.5,-2,0;")
	if err != nil || len(g) != 2 || g[1] != (mgl64.Vec3{1.5, -2, 0}) {
		t.Fatalf("goals=%v err=%v", g, err)
	}
	for _, bad := range []string{"", "1,2", "a,b,c"} {
		if _, err := parseGoals(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}
