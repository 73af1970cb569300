package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"strider.ai/internal/persistence/indexdb"
	"strider.ai/internal/sim/sandbox"
	"strider.ai/internal/transport/ws"
)

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, metricsView{
		World:  sandbox.Stats{Agents: 2, Boxes: 3, Casts: 7, Steps: 11, Escalations: 1},
		Server: ws.Stats{Connections: 2, Requests: 9},
		StepMS: 0.25,
	})
	out := buf.String()
	for _, want := range []string{
		"strider_sandbox_agents 2\n",
		"# TYPE strider_sandbox_casts_total counter\n",
		"strider_sandbox_escalations_total 1\n",
		"strider_sandbox_step_ms 0.250\n",
		"strider_ws_requests_total 9\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "strider_index_") {
		t.Fatalf("index metrics without an index")
	}

	buf.Reset()
	writeMetrics(&buf, metricsView{Index: &indexdb.Stats{QueueCapacity: 8}})
	if !strings.Contains(buf.String(), "strider_index_queue_capacity 8\n") {
		t.Fatalf("index metrics missing:\n%s", buf.String())
	}
}

func TestApplyFault(t *testing.T) {
	w := sandbox.NewWorld(sandbox.Config{})
	if err := sandbox.DefaultCourse().Apply(w); err != nil {
		t.Fatalf("course: %v", err)
	}

	r := httptest.NewRequest("POST", "/admin/v1/fault?rays=2&status=-3", nil)
	if err := applyFault(w, r); err != nil {
		t.Fatalf("rays: %v", err)
	}
	if res := w.CastRay(mgl64.Vec3{0, 0, 1}, mgl64.Vec3{1, 0, 1}); res.Status != -3 {
		t.Fatalf("status=%d", res.Status)
	}

	r = httptest.NewRequest("POST", "/admin/v1/fault?rays=1&status=2", nil)
	if err := applyFault(w, r); err == nil {
		t.Fatalf("non-negative status accepted")
	}
	r = httptest.NewRequest("POST", "/admin/v1/fault?agent=ghost&frozen=true", nil)
	if err := applyFault(w, r); err == nil {
		t.Fatalf("unknown agent accepted")
	}

	w.FailRays(0, -1)
	from, to := mgl64.Vec3{0, 0, 1}, mgl64.Vec3{10, 0, 1}
	if !w.CastRay(from, to).Hit {
		t.Fatalf("wall-1 missing")
	}
	r = httptest.NewRequest("POST", "/admin/v1/fault?remove_box=wall-1", nil)
	if err := applyFault(w, r); err != nil {
		t.Fatalf("remove_box: %v", err)
	}
	if res := w.CastRay(from, to); res.Hit {
		t.Fatalf("still hit %+v", res)
	}
	if err := applyFault(w, r); err == nil {
		t.Fatalf("second remove accepted")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("STRIDER_TEST_INT", "12")
	t.Setenv("STRIDER_TEST_BOOL", "nope")
	if envInt("STRIDER_TEST_INT", 1) != 12 || envBool("STRIDER_TEST_BOOL", true) != true {
		t.Fatalf("env parse")
	}
	if envString("STRIDER_TEST_MISSING", "x") != "x" {
		t.Fatalf("default")
	}
	if !isLoopbackRemote("127.0.0.1:5555") || isLoopbackRemote("10.0.0.1:1") {
		t.Fatalf("loopback")
	}
}
