package movement

import (
	"errors"
	"testing"
)

type failingRecorder struct{ n int }

func (f *failingRecorder) RecordOutcome(Event) error {
	f.n++
	return errors.New("disk full")
}

func TestRecordersFanOut(t *testing.T) {
	bad := &failingRecorder{}
	good := &memRecorder{}
	rs := Recorders{bad, nil, good}

	err := rs.RecordOutcome(Event{AgentID: "a1"})
	if err == nil || bad.n != 1 {
		t.Fatalf("err=%v n=%d", err, bad.n)
	}
	if len(good.events) != 1 || good.events[0].AgentID != "a1" {
		t.Fatalf("events=%+v", good.events)
	}
	if err := (Recorders{good}).RecordOutcome(Event{}); err != nil {
		t.Fatalf("err=%v", err)
	}
}
