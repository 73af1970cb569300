package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefaultsMatchNavigationConstants(t *testing.T) {
	d := Defaults()
	m := d.MovementConfig()
	if m.StallTimeout != 120*time.Second || m.StartupGrace != 2*time.Second {
		t.Fatalf("movement=%+v", m)
	}
	if m.ProgressWindow != 0 {
		t.Fatalf("progress detector must be off by default")
	}
	if a := d.AvoidConfig(); a.MaxAvoidDistance != 8.0 || a.ProbeCount != 3 {
		t.Fatalf("avoid=%+v", a)
	}
	if d.Probe.Retries != 10 || d.Probe.RetryDelayMs != 200 {
		t.Fatalf("probe=%+v", d.Probe)
	}
	if d.StepInterval() != 100*time.Millisecond {
		t.Fatalf("step=%s", d.StepInterval())
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	p := writeTuning(t, `
step_hz: 20
probe:
  probe_count: 5
movement:
  progress_window_ms: 10000
  progress_min_distance: 0.5
`)
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.StepHz != 20 || tu.Probe.ProbeCount != 5 {
		t.Fatalf("tuning=%+v", tu)
	}
	if tu.Probe.Retries != 10 {
		t.Fatalf("missing key lost its default: %+v", tu.Probe)
	}
	m := tu.MovementConfig()
	if m.ProgressWindow != 10*time.Second || m.ProgressMinDistance != 0.5 {
		t.Fatalf("movement=%+v", m)
	}
	if m.StallTimeout != 120*time.Second {
		t.Fatalf("stall timeout=%s", m.StallTimeout)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"probe count": "probe:\n  probe_count: 1\n",
		"unknown key": "probe:\n  laser: true\n",
		"wrong type":  "movement:\n  stall_timeout_ms: soon\n",
		"version":     "protocol_version: \"2.0\"\n",
	}
	for name, body := range cases {
		_, err := Load(writeTuning(t, body))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !strings.Contains(err.Error(), "tuning.yaml") {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}

func TestLoadEmptyFileIsDefaults(t *testing.T) {
	tu, err := Load(writeTuning(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu != Defaults() {
		t.Fatalf("tuning=%+v", tu)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMalformedYAML(t *testing.T) {
	if err := Validate([]byte("probe: [unclosed")); err == nil {
		t.Fatalf("expected error")
	}
}
