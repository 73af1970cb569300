// Package movement supervises a single high-level movement request on top of
// the host's own movement verbs: it detects stalls, attempts an unstick and
// restart, and reports exactly one terminal outcome per request.
package movement

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/status"
)

// Supervisor is not safe for concurrent use. Tick and HandleHostStatus must be
// called from the same goroutine.
type Supervisor struct {
	agentID string
	host    Host
	clock   Clock
	cfg     Config
	cb      Callback
	rec     Recorder
	log     *log.Logger
	rng     *rand.Rand

	req      Request
	stats    Stats
	progress []sample
	// current is the state sample taken by the evaluation in progress, if any.
	current *AgentState
}

type sample struct {
	at  time.Time
	pos mgl64.Vec3
}

type Option func(*Supervisor)

func WithClock(c Clock) Option        { return func(s *Supervisor) { s.clock = c } }
func WithCallback(cb Callback) Option { return func(s *Supervisor) { s.cb = cb } }
func WithRecorder(r Recorder) Option  { return func(s *Supervisor) { s.rec = r } }
func WithLogger(l *log.Logger) Option { return func(s *Supervisor) { s.log = l } }
func WithRand(r *rand.Rand) Option    { return func(s *Supervisor) { s.rng = r } }

func NewSupervisor(agentID string, host Host, cfg Config, opts ...Option) *Supervisor {
	cfg = cfg.withDefaults()
	s := &Supervisor{
		agentID: agentID,
		host:    host,
		clock:   realClock{},
		cfg:     cfg,
		stats:   Stats{Outcomes: map[status.Code]int{}},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.rng = rand.New(rand.NewSource(seed))
	}
	return s
}

func (s *Supervisor) Mode() Mode { return s.req.Mode }

// Snapshot returns a copy of the live request; Mode is Off when idle.
func (s *Supervisor) Snapshot() Request {
	r := s.req
	if r.Options != nil {
		r.Options = make(Options, len(s.req.Options))
		for k, v := range s.req.Options {
			r.Options[k] = v
		}
	}
	return r
}

func (s *Supervisor) Stats() Stats {
	out := s.stats
	out.Outcomes = make(map[status.Code]int, len(s.stats.Outcomes))
	for k, v := range s.stats.Outcomes {
		out.Outcomes[k] = v
	}
	return out
}

func (s *Supervisor) StartNavigateTo(ctx context.Context, goal mgl64.Vec3, tolerance float64, opts Options) error {
	if tolerance <= 0 {
		return ErrInvalidTolerance
	}
	return s.start(ctx, Request{Mode: NavigateTo, Goal: goal, Tolerance: tolerance, Options: opts})
}

func (s *Supervisor) StartPursue(ctx context.Context, target string, tolerance float64, opts Options) error {
	if target == "" {
		return ErrEmptyTarget
	}
	if tolerance <= 0 {
		return ErrInvalidTolerance
	}
	return s.start(ctx, Request{Mode: Pursue, Target: target, Tolerance: tolerance, Options: opts})
}

func (s *Supervisor) StartWander(ctx context.Context, center, spread mgl64.Vec3, opts Options) error {
	return s.start(ctx, Request{Mode: Wander, Goal: center, Spread: spread, Options: opts})
}

func (s *Supervisor) StartEvade(ctx context.Context, target string, opts Options) error {
	if target == "" {
		return ErrEmptyTarget
	}
	return s.start(ctx, Request{Mode: Evade, Target: target, Options: opts})
}

// StartFleeFrom keeps the source in Goal and the flee distance in both Distance
// and Tolerance.
func (s *Supervisor) StartFleeFrom(ctx context.Context, from mgl64.Vec3, distance float64, opts Options) error {
	if distance <= 0 {
		return ErrInvalidTolerance
	}
	return s.start(ctx, Request{Mode: FleeFrom, Goal: from, Distance: distance, Tolerance: distance, Options: opts})
}

func (s *Supervisor) start(ctx context.Context, r Request) error {
	if s.req.Mode != Off {
		s.stopActive(ctx)
	}
	r.RequestStart = s.clock.Now()
	s.req = r
	s.stats.Starts++
	if err := s.issue(ctx); err != nil {
		s.req = Request{}
		return err
	}
	return nil
}

// issue sends the active request to the host and restamps the action start.
func (s *Supervisor) issue(ctx context.Context) error {
	spec := modeTable[s.req.Mode]
	s.req.ActionStart = s.clock.Now()
	s.progress = s.progress[:0]
	if err := spec.issue(ctx, s.host, &s.req); err != nil {
		return fmt.Errorf("%s: %w", spec.name, err)
	}
	return nil
}

// Stop cancels the active request without a callback.
func (s *Supervisor) Stop(ctx context.Context) {
	if s.req.Mode == Off {
		return
	}
	s.stopActive(ctx)
	s.req = Request{}
}

func (s *Supervisor) stopActive(ctx context.Context) {
	s.stats.Stops++
	if err := s.host.StopMovement(ctx); err != nil {
		s.log.Printf("agent=%s stop %s: %v", s.agentID, s.req.Mode, err)
	}
}

// Restart reissues the active request with its original arguments. The request
// start is kept so the overall stall timeout still applies.
func (s *Supervisor) Restart(ctx context.Context) error {
	if s.req.Mode == Off {
		s.stats.Misuse++
		s.log.Printf("agent=%s restart with no active mode", s.agentID)
		return ErrNoActiveMode
	}
	s.stats.Restarts++
	s.req.Restarts++
	return s.issue(ctx)
}

// Tick runs one periodic evaluation and acts on the verdict. It returns
// CodeNone while the request is progressing, CodeRetry after a successful
// unstick and restart, or the terminal code.
func (s *Supervisor) Tick(ctx context.Context) status.Code {
	if s.req.Mode == Off {
		return status.CodeNone
	}
	s.current = nil
	v, reached := s.evaluate(ctx)
	if reached {
		return s.finish(ctx, status.CodeGoalReached)
	}
	return s.act(ctx, v)
}

// evaluate returns the stall verdict for the active request, or reached=true
// when the agent is at its goal. The overall timeout wins over every other signal.
func (s *Supervisor) evaluate(ctx context.Context) (status.Stall, bool) {
	spec := modeTable[s.req.Mode]
	if !spec.canStall {
		return status.StallNone, false
	}
	now := s.clock.Now()
	if now.Sub(s.req.RequestStart) > s.cfg.StallTimeout {
		return status.StallStalled, false
	}
	st, err := s.host.State(ctx)
	if err != nil {
		s.log.Printf("agent=%s state: %v", s.agentID, err)
		return status.StallNone, false
	}
	s.current = &st
	return s.judge(ctx, now, st)
}

// judge evaluates one state sample; the goal check and the motion check
// never see different samples.
func (s *Supervisor) judge(ctx context.Context, now time.Time, st AgentState) (status.Stall, bool) {
	if s.reachedGoal(ctx, st) {
		return status.StallNone, true
	}
	if now.Sub(s.req.ActionStart) <= s.cfg.StartupGrace {
		return status.StallNone, false
	}
	if st.Vel.Len() < s.cfg.MotionEpsilon && st.AngVel.Len() < s.cfg.MotionEpsilon {
		return status.StallRetry, false
	}
	if s.noProgress(now, st.Pos) {
		return status.StallRetry, false
	}
	return status.StallNone, false
}

// noProgress implements the optional displacement-over-window check.
func (s *Supervisor) noProgress(now time.Time, pos mgl64.Vec3) bool {
	if s.cfg.ProgressWindow <= 0 {
		return false
	}
	s.progress = append(s.progress, sample{at: now, pos: pos})
	cut := 0
	for cut < len(s.progress)-1 && now.Sub(s.progress[cut+1].at) >= s.cfg.ProgressWindow {
		cut++
	}
	s.progress = s.progress[cut:]
	oldest := s.progress[0]
	if now.Sub(oldest.at) < s.cfg.ProgressWindow {
		return false
	}
	if pos.Sub(oldest.pos).Len() >= s.cfg.ProgressMinDistance {
		return false
	}
	s.progress = s.progress[:0]
	return true
}

func (s *Supervisor) act(ctx context.Context, v status.Stall) status.Code {
	switch v {
	case status.StallNone:
		return status.CodeNone
	case status.StallStalled:
		return s.finish(ctx, status.CodeStalled)
	case status.StallRetry:
		s.stats.Retries++
		if !s.unstick(ctx) {
			if ctx.Err() != nil {
				return s.abandon(ctx)
			}
			s.stats.UnstickFailures++
			return s.finish(ctx, status.CodeCannotMove)
		}
		if err := s.Restart(ctx); err != nil {
			if ctx.Err() != nil {
				return s.abandon(ctx)
			}
			s.log.Printf("agent=%s restart %s: %v", s.agentID, s.req.Mode, err)
			return s.finish(ctx, status.CodeCannotMove)
		}
		return status.CodeRetry
	default:
		s.log.Printf("agent=%s unexpected stall verdict %s", s.agentID, v)
		return s.finish(ctx, status.CodeCannotMove)
	}
}

// abandon handles a context cancelled during recovery. Nothing was learned
// about the agent, so the request is dropped like an explicit Stop: the host
// is stopped on a context that outlives the caller's and no outcome is reported.
func (s *Supervisor) abandon(ctx context.Context) status.Code {
	s.log.Printf("agent=%s %s canceled during recovery: %v", s.agentID, s.req.Mode, context.Cause(ctx))
	s.stats.Canceled++
	s.Stop(context.WithoutCancel(ctx))
	s.progress = s.progress[:0]
	return status.CodeNone
}

// reachedGoal is the independent completion check on sample st; it is false
// for modes without a goal.
func (s *Supervisor) reachedGoal(ctx context.Context, st AgentState) bool {
	if !modeTable[s.req.Mode].hasGoal {
		return false
	}
	switch s.req.Mode {
	case NavigateTo:
		return st.Pos.Sub(s.req.Goal).Len() <= s.req.Tolerance
	case Pursue:
		tp, ok, err := s.host.TargetPosition(ctx, s.req.Target)
		if err != nil {
			s.log.Printf("agent=%s target %s: %v", s.agentID, s.req.Target, err)
			return false
		}
		return ok && st.Pos.Sub(tp).Len() <= s.req.Tolerance
	case FleeFrom:
		return st.Pos.Sub(s.req.Goal).Len() >= s.req.Distance
	}
	return false
}

// HandleHostStatus routes an asynchronous path update from the host.
func (s *Supervisor) HandleHostStatus(ctx context.Context, h status.Host) status.Code {
	if s.req.Mode == Off {
		s.log.Printf("agent=%s host status %d with no active request", s.agentID, int(h))
		return status.CodeNone
	}
	s.current = nil
	code := status.FromHost(h)
	switch {
	case h == status.HostGoalReached:
		if !modeTable[s.req.Mode].hasGoal {
			s.report(code, false)
			return code
		}
		return s.verifyArrival(ctx)
	case h.PassThrough():
		s.report(code, false)
		return code
	default:
		return s.finish(ctx, code)
	}
}

// verifyArrival checks a host "goal reached" against one state sample. The
// host may think it is done before the agent is there; that case goes through
// stall handling with None promoted to Retry.
func (s *Supervisor) verifyArrival(ctx context.Context) status.Code {
	spec := modeTable[s.req.Mode]
	now := s.clock.Now()
	if spec.canStall && now.Sub(s.req.RequestStart) > s.cfg.StallTimeout {
		return s.act(ctx, status.StallStalled)
	}
	st, err := s.host.State(ctx)
	if err != nil {
		s.log.Printf("agent=%s state: %v", s.agentID, err)
		return s.act(ctx, status.StallRetry)
	}
	s.current = &st
	v := status.StallNone
	if spec.canStall {
		var reached bool
		if v, reached = s.judge(ctx, now, st); reached {
			return s.finish(ctx, status.CodeGoalReached)
		}
	} else if s.reachedGoal(ctx, st) {
		return s.finish(ctx, status.CodeGoalReached)
	}
	if v == status.StallNone {
		v = status.StallRetry
	}
	return s.act(ctx, v)
}

// finish stops the host, delivers the single terminal report and clears the request.
func (s *Supervisor) finish(ctx context.Context, code status.Code) status.Code {
	s.stopActive(ctx)
	s.report(code, true)
	s.req = Request{}
	s.progress = s.progress[:0]
	return code
}

func (s *Supervisor) report(code status.Code, terminal bool) {
	now := s.clock.Now()
	var pos mgl64.Vec3
	if s.current != nil {
		pos = s.current.Pos
	} else if st, err := s.host.State(context.Background()); err == nil {
		pos = st.Pos
	}
	if terminal {
		s.stats.Outcomes[code]++
	}
	rep := Report{
		AgentID:  s.agentID,
		Mode:     s.req.Mode,
		Code:     code,
		Terminal: terminal,
		At:       now,
		Pos:      pos,
	}
	s.log.Printf("agent=%s mode=%s code=%s terminal=%v", s.agentID, rep.Mode, code, terminal)
	if s.rec != nil {
		ev := Event{
			Time:      now,
			AgentID:   s.agentID,
			Mode:      s.req.Mode.String(),
			Code:      code,
			Terminal:  terminal,
			Pos:       [3]float64(pos),
			Goal:      [3]float64(s.req.Goal),
			Target:    s.req.Target,
			Restarts:  s.req.Restarts,
			ElapsedMS: now.Sub(s.req.RequestStart).Milliseconds(),
		}
		if err := s.rec.RecordOutcome(ev); err != nil {
			s.log.Printf("agent=%s record outcome: %v", s.agentID, err)
		}
	}
	if s.cb != nil {
		s.cb(rep)
	}
}
