package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/avoid"
	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/status"
)

// hostLink is what the runner needs from the remote host beyond movement.Host.
type hostLink interface {
	movement.Host
	Updates() <-chan status.Host
	Escalate(ctx context.Context, start, goal mgl64.Vec3, width, height float64, agentType string) error
}

type runner struct {
	name    string
	link    hostLink
	sup     *movement.Supervisor
	planner *avoid.Planner
	log     *log.Logger

	width, height float64
	tolerance     float64
	tick          time.Duration
}

// runGoal plans a local avoidance path to goal and walks it leg by leg under
// the supervisor. An empty plan is escalated and reported as unreachable.
func (r *runner) runGoal(ctx context.Context, goal mgl64.Vec3) (status.Code, error) {
	st, err := r.link.State(ctx)
	if err != nil {
		return status.CodeNone, err
	}
	path := r.planner.PlanAvoidance(ctx, st.Pos, goal, r.width, r.height, "")
	if len(path) == 0 {
		r.log.Printf("%s: no local path %v -> %v; escalating", r.name, st.Pos, goal)
		if err := r.link.Escalate(ctx, st.Pos, goal, r.width, r.height, ""); err != nil {
			return status.CodeNone, fmt.Errorf("escalate: %w", err)
		}
		return status.CodeUnreachable, nil
	}
	r.log.Printf("%s: path %v", r.name, path)

	for _, wp := range path[1:] {
		code, err := r.runLeg(ctx, wp)
		if err != nil {
			return code, err
		}
		if code != status.CodeGoalReached {
			return code, nil
		}
	}
	return status.CodeGoalReached, nil
}

func (r *runner) runLeg(ctx context.Context, wp mgl64.Vec3) (status.Code, error) {
	// Updates raised for the previous leg no longer apply.
	for drained := false; !drained; {
		select {
		case <-r.link.Updates():
		default:
			drained = true
		}
	}
	if err := r.sup.StartNavigateTo(ctx, wp, r.tolerance, nil); err != nil {
		return status.CodeNone, err
	}
	t := time.NewTicker(r.tick)
	defer t.Stop()
	for {
		var code status.Code
		select {
		case <-ctx.Done():
			r.sup.Stop(context.Background())
			return status.CodeNone, ctx.Err()
		case h := <-r.link.Updates():
			code = r.sup.HandleHostStatus(ctx, h)
		case <-t.C:
			code = r.sup.Tick(ctx)
		}
		if code != status.CodeNone && r.sup.Mode() == movement.Off {
			return code, nil
		}
	}
}

// parseGoals reads "x,y,z;x,y,z".
func parseGoals(s string) ([]mgl64.Vec3, error) {
	var out []mgl64.Vec3
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("goal %q: want x,y,z", part)
		}
		var v mgl64.Vec3
		for i, f := range fields {
			n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("goal %q: %w", part, err)
			}
			v[i] = n
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no goals")
	}
	return out, nil
}
