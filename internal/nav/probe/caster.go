// Package probe casts rays against the host environment. A RetryCaster absorbs
// transient platform faults; a Scanner sweeps a grid of rays across a
// rectangular cross-section to decide physical clearance along a segment.
package probe

import (
	"context"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/nav/status"
)

// CastResult is the outcome of one ray cast.
type CastResult struct {
	Hit      bool
	HitID    string
	HitPoint mgl64.Vec3
	Status   status.Ray
}

// Caster is the host capability this package consumes.
type Caster interface {
	CastRay(ctx context.Context, from, to mgl64.Vec3) (CastResult, error)
	// SurfaceWalkable reports whether the object is a walkable surface that
	// must not count as an obstacle for horizontal clearance.
	SurfaceWalkable(ctx context.Context, objectID string) bool
}

const (
	DefaultRetries    = 10
	DefaultRetryDelay = 200 * time.Millisecond
)

// RetryCaster retries a cast a fixed number of times with a fixed delay while
// the host reports a negative status. There is no backoff growth.
type RetryCaster struct {
	Caster  Caster
	Retries int
	Delay   time.Duration
	Log     *log.Logger

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryCaster(c Caster, retries int, delay time.Duration, logger *log.Logger) *RetryCaster {
	if retries <= 0 {
		retries = DefaultRetries
	}
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	return &RetryCaster{Caster: c, Retries: retries, Delay: delay, Log: logger}
}

// MaxLatency is the declared worst-case time spent waiting inside one CastRay.
func (r *RetryCaster) MaxLatency() time.Duration {
	if r.Retries <= 1 {
		return 0
	}
	return time.Duration(r.Retries-1) * r.Delay
}

// CastRay casts once and retries on failure. It returns the last result; a
// transport error from the host counts as status.RayUnknown.
func (r *RetryCaster) CastRay(ctx context.Context, from, to mgl64.Vec3) CastResult {
	attempts := r.Retries
	if attempts <= 0 {
		attempts = 1
	}
	var res CastResult
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := r.sleep(ctx, r.Delay); err != nil {
				return CastResult{Status: status.RayCanceled}
			}
		}
		var err error
		res, err = r.Caster.CastRay(ctx, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return CastResult{Status: status.RayCanceled}
			}
			res = CastResult{Status: status.RayUnknown}
		}
		if !res.Status.Failed() {
			return res
		}
		if r.Log != nil {
			r.Log.Printf("cast ray attempt %d/%d failed: status=%s", i+1, attempts, res.Status)
		}
	}
	return res
}

// SurfaceWalkable delegates to the wrapped caster.
func (r *RetryCaster) SurfaceWalkable(ctx context.Context, objectID string) bool {
	return r.Caster.SurfaceWalkable(ctx, objectID)
}

func (r *RetryCaster) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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
