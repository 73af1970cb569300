package bridge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResumeStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots", "sessions.json")
	rs, err := openResumeStore(path)
	if err != nil {
		t.Fatalf("open missing: %v", err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	if err := rs.record("bot-1", sessionUpdate{AgentID: "A7", LastConnectedAt: at}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rs.record("bot-1", sessionUpdate{LastConnectedAt: at.Add(time.Minute)}); err != nil {
		t.Fatalf("record: %v", err)
	}

	again, err := openResumeStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r := again.get("bot-1")
	if r.AgentID != "A7" || r.Welcomes != 2 || !r.ConnectedAt.Equal(at.Add(time.Minute)) {
		t.Fatalf("record=%+v", r)
	}
	if got := again.get("bot-2"); got.AgentID != "" || !got.ConnectedAt.IsZero() {
		t.Fatalf("unknown key=%+v", got)
	}

	ents, _ := os.ReadDir(filepath.Dir(path))
	if len(ents) != 1 {
		t.Fatalf("leftover temp files: %v", ents)
	}
}

func TestResumeStoreRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"garbage.json": "{not json",
		"future.json":  `{"version": 9, "bots": {}}`,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := openResumeStore(path); err == nil || !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}

func TestResumeStoreInMemory(t *testing.T) {
	rs, err := openResumeStore("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rs.record("k", sessionUpdate{AgentID: "A1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if r := rs.get("k"); r.AgentID != "A1" || r.Welcomes != 0 {
		t.Fatalf("record=%+v", r)
	}
}
