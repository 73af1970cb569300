package main

import "testing"

func TestFaultQuery(t *testing.T) {
	q, err := faultQuery(3, -2, "", "", "", "")
	if err != nil || q.Get("rays") != "3" || q.Get("status") != "-2" {
		t.Fatalf("q=%v err=%v", q, err)
	}
	q, err = faultQuery(0, -1, " a1 ", "true", "", "")
	if err != nil || q.Get("agent") != "a1" || q.Get("frozen") != "true" || q.Has("rays") {
		t.Fatalf("q=%v err=%v", q, err)
	}
	q, err = faultQuery(0, -1, "", "", "", "wall-1")
	if err != nil || q.Get("remove_box") != "wall-1" || len(q) != 1 {
		t.Fatalf("q=%v err=%v", q, err)
	}

	bad := []struct {
		rays, st             int
		agent, frozen, nudge string
	}{
		{0, -1, "", "", ""},
		{0, -1, "a1", "", ""},
		{2, 0, "", "", ""},
		{0, -1, "", "true", ""},
		{0, -1, "a1", "", "maybe"},
	}
	for _, b := range bad {
		if _, err := faultQuery(b.rays, b.st, b.agent, b.frozen, b.nudge, ""); err == nil {
			t.Fatalf("accepted %+v", b)
		}
	}
}
