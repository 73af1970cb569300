package movement

import (
	"context"
	"fmt"
)

// Mode is the active movement verb.
type Mode int

const (
	Off Mode = iota
	NavigateTo
	Pursue
	Wander
	Evade
	FleeFrom
)

func (m Mode) String() string {
	if s, ok := modeTable[m]; ok {
		return s.name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// modeSpec is one row of the transition table.
type modeSpec struct {
	name string
	// canStall is false for modes without a completion criterion; the stall
	// check never fires for them.
	canStall bool
	// hasGoal is true when a host "goal reached" can be verified independently.
	hasGoal bool
	issue   func(ctx context.Context, h Host, r *Request) error
}

var modeTable = map[Mode]modeSpec{
	Off: {name: "OFF"},
	NavigateTo: {
		name:     "NAVIGATE_TO",
		canStall: true,
		hasGoal:  true,
		issue: func(ctx context.Context, h Host, r *Request) error {
			return h.NavigateTo(ctx, r.Goal, r.Options)
		},
	},
	Pursue: {
		name:     "PURSUE",
		canStall: true,
		hasGoal:  true,
		issue: func(ctx context.Context, h Host, r *Request) error {
			return h.Pursue(ctx, r.Target, r.Options)
		},
	},
	Wander: {
		name: "WANDER",
		issue: func(ctx context.Context, h Host, r *Request) error {
			return h.Wander(ctx, r.Goal, r.Spread, r.Options)
		},
	},
	Evade: {
		name: "EVADE",
		issue: func(ctx context.Context, h Host, r *Request) error {
			return h.Evade(ctx, r.Target, r.Options)
		},
	},
	FleeFrom: {
		name:    "FLEE_FROM",
		hasGoal: true,
		issue: func(ctx context.Context, h Host, r *Request) error {
			return h.FleeFrom(ctx, r.Goal, r.Distance, r.Options)
		},
	},
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, bool) {
	for m, spec := range modeTable {
		if spec.name == s {
			return m, true
		}
	}
	return Off, false
}
