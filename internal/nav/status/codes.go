package status

import "fmt"

// Code is the reported form of an outcome. The empty Code means nothing happened.
type Code string

const (
	CodeNone Code = ""

	// Supervisor outcomes.
	CodeGoalReached Code = "GOAL_REACHED"
	CodeRetry       Code = "RETRY"
	CodeStalled     Code = "E_STALLED"
	CodeCannotMove  Code = "E_CANNOT_MOVE"

	// Host pass-through.
	CodeSlowdownDistanceReached Code = "SLOWDOWN_DISTANCE_REACHED"
	CodeEvadeHidden             Code = "EVADE_HIDDEN"
	CodeEvadeSpotted            Code = "EVADE_SPOTTED"

	// Host failures.
	CodeInvalidStart          Code = "E_INVALID_START"
	CodeInvalidGoal           Code = "E_INVALID_GOAL"
	CodeUnreachable           Code = "E_UNREACHABLE"
	CodeTargetGone            Code = "E_TARGET_GONE"
	CodeNoValidDestination    Code = "E_NO_VALID_DESTINATION"
	CodeNoNavmesh             Code = "E_NO_NAVMESH"
	CodeDynamicPathfindingOff Code = "E_DYNAMIC_PATHFINDING_OFF"
	CodeParcelUnreachable     Code = "E_PARCEL_UNREACHABLE"
	CodeHostFailure           Code = "E_HOST_FAILURE"

	CodeInternal Code = "E_INTERNAL"
)

var hostCodes = map[Host]Code{
	HostSlowdownDistanceReached:      CodeSlowdownDistanceReached,
	HostGoalReached:                  CodeGoalReached,
	HostFailureInvalidStart:          CodeInvalidStart,
	HostFailureInvalidGoal:           CodeInvalidGoal,
	HostFailureUnreachable:           CodeUnreachable,
	HostFailureTargetGone:            CodeTargetGone,
	HostFailureNoValidDestination:    CodeNoValidDestination,
	HostEvadeHidden:                  CodeEvadeHidden,
	HostEvadeSpotted:                 CodeEvadeSpotted,
	HostFailureNoNavmesh:             CodeNoNavmesh,
	HostFailureDynamicPathfindingOff: CodeDynamicPathfindingOff,
	HostFailureParcelUnreachable:     CodeParcelUnreachable,
	HostFailureOther:                 CodeHostFailure,
}

var knownCodes = map[Code]struct{}{
	CodeNone:       {},
	CodeRetry:      {},
	CodeStalled:    {},
	CodeCannotMove: {},
	CodeInternal:   {},
}

func init() {
	for _, c := range hostCodes {
		knownCodes[c] = struct{}{}
	}
}

// FromHost maps a host status onto a Code. Unlisted host values keep their
// number so nothing is lost on the way up.
func FromHost(h Host) Code {
	if c, ok := hostCodes[h]; ok {
		return c
	}
	return Code(fmt.Sprintf("E_HOST_%d", int(h)))
}

// FromStall maps a supervisor verdict onto a Code.
func FromStall(s Stall) Code {
	switch s {
	case StallRetry:
		return CodeRetry
	case StallStalled:
		return CodeStalled
	case StallCannotMove:
		return CodeCannotMove
	default:
		return CodeNone
	}
}

func IsKnownCode(c Code) bool {
	_, ok := knownCodes[c]
	return ok
}

// Failure reports whether the code ends a request unsuccessfully.
func (c Code) Failure() bool {
	return len(c) > 2 && c[0] == 'E' && c[1] == '_'
}
