package status

import "testing"

func TestFromHostKnownAndUnknown(t *testing.T) {
	if got := FromHost(HostGoalReached); got != CodeGoalReached {
		t.Fatalf("FromHost(goal)=%q", got)
	}
	if got := FromHost(HostEvadeSpotted); got != CodeEvadeSpotted {
		t.Fatalf("FromHost(spotted)=%q", got)
	}
	if got := FromHost(Host(42)); got != "E_HOST_42" {
		t.Fatalf("FromHost(42)=%q", got)
	}
	if IsKnownCode(FromHost(Host(42))) {
		t.Fatalf("expected unmapped host code to be unknown")
	}
}

func TestFromStall(t *testing.T) {
	cases := map[Stall]Code{
		StallNone:       CodeNone,
		StallRetry:      CodeRetry,
		StallStalled:    CodeStalled,
		StallCannotMove: CodeCannotMove,
	}
	for in, want := range cases {
		if got := FromStall(in); got != want {
			t.Fatalf("FromStall(%s)=%q want %q", in, got, want)
		}
	}
}

func TestHostAndStallRangesDoNotCollide(t *testing.T) {
	// Every stall verdict maps to a code that no host status produces.
	hostSide := map[Code]bool{}
	for h := range hostCodes {
		hostSide[FromHost(h)] = true
	}
	for _, s := range []Stall{StallRetry, StallStalled, StallCannotMove} {
		if hostSide[FromStall(s)] {
			t.Fatalf("stall %s collides with a host code", s)
		}
	}
}

func TestCodeFailure(t *testing.T) {
	if CodeGoalReached.Failure() || CodeEvadeHidden.Failure() || CodeNone.Failure() {
		t.Fatalf("success/pass-through codes must not be failures")
	}
	if !CodeStalled.Failure() || !CodeUnreachable.Failure() || !FromHost(Host(99)).Failure() {
		t.Fatalf("expected failure codes")
	}
}

func TestRayFailed(t *testing.T) {
	if RayOK.Failed() || Ray(2).Failed() {
		t.Fatalf("non-negative statuses are not failures")
	}
	if !RayBadCall.Failed() || !RaySimPerfLow.Failed() {
		t.Fatalf("negative statuses are failures")
	}
}
