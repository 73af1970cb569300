// Package status holds the status vocabulary shared by the probing layer and the
// movement supervisor. Host codes, ray codes and supervisor stall states live in
// disjoint types; Code is the single string form reported upward.
package status

import "fmt"

// Ray is the status of a single ray cast. Negative values are failures.
type Ray int

const (
	RayOK Ray = 0

	// Host platform failures.
	RayUnknown          Ray = -1
	RaySimPerfLow       Ray = -2
	RayCastTimeExceeded Ray = -3

	// Local failures, kept below the host range.
	RayBadCall  Ray = -100
	RayCanceled Ray = -101
)

func (r Ray) Failed() bool { return r < 0 }

func (r Ray) String() string {
	switch r {
	case RayOK:
		return "OK"
	case RayUnknown:
		return "UNKNOWN"
	case RaySimPerfLow:
		return "SIM_PERF_LOW"
	case RayCastTimeExceeded:
		return "CAST_TIME_EXCEEDED"
	case RayBadCall:
		return "BAD_CALL"
	case RayCanceled:
		return "CANCELED"
	default:
		if r > 0 {
			return fmt.Sprintf("HITS(%d)", int(r))
		}
		return fmt.Sprintf("Ray(%d)", int(r))
	}
}

// Host is a movement status reported by the host platform. Values are opaque
// integers forwarded verbatim; only a few carry meaning for the supervisor.
type Host int

const (
	HostSlowdownDistanceReached      Host = 0
	HostGoalReached                  Host = 1
	HostFailureInvalidStart          Host = 2
	HostFailureInvalidGoal           Host = 3
	HostFailureUnreachable           Host = 4
	HostFailureTargetGone            Host = 5
	HostFailureNoValidDestination    Host = 6
	HostEvadeHidden                  Host = 7
	HostEvadeSpotted                 Host = 8
	HostFailureNoNavmesh             Host = 9
	HostFailureDynamicPathfindingOff Host = 10
	HostFailureParcelUnreachable     Host = 11
	HostFailureOther                 Host = 1000000
)

// PassThrough reports whether the status is informational and must not end the
// active request.
func (h Host) PassThrough() bool {
	switch h {
	case HostSlowdownDistanceReached, HostEvadeHidden, HostEvadeSpotted:
		return true
	}
	return false
}

// Stall is the supervisor's own verdict for an active request.
type Stall int

const (
	StallNone Stall = iota
	StallRetry
	StallStalled
	StallCannotMove
)

func (s Stall) String() string {
	switch s {
	case StallNone:
		return "NONE"
	case StallRetry:
		return "RETRY"
	case StallStalled:
		return "STALLED"
	case StallCannotMove:
		return "CANNOT_MOVE"
	default:
		return fmt.Sprintf("Stall(%d)", int(s))
	}
}
