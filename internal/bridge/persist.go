package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const resumeVersion = 1

// resumeRecord is what a bot needs to rejoin the host as the same agent.
type resumeRecord struct {
	AgentID     string    `json:"agent_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Welcomes    int       `json:"welcomes,omitempty"`
}

type resumeFile struct {
	Version int                     `json:"version"`
	Bots    map[string]resumeRecord `json:"bots"`
}

// resumeStore keeps one resumeRecord per bot key in a JSON file. A store with
// an empty path lives in memory only. Not safe for concurrent use; Manager
// serializes access.
type resumeStore struct {
	path string
	bots map[string]resumeRecord
}

func openResumeStore(path string) (*resumeStore, error) {
	rs := &resumeStore{path: path, bots: map[string]resumeRecord{}}
	if path == "" {
		return rs, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rs, nil
	}
	if err != nil {
		return nil, err
	}
	var f resumeFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse resume file %s: %w", path, err)
	}
	if f.Version != resumeVersion {
		return nil, fmt.Errorf("resume file %s: unsupported version %d", path, f.Version)
	}
	for k, r := range f.Bots {
		rs.bots[k] = r
	}
	return rs, nil
}

func (rs *resumeStore) get(key string) resumeRecord { return rs.bots[key] }

// record folds a session update into key's record and saves the file.
func (rs *resumeStore) record(key string, upd sessionUpdate) error {
	r := rs.bots[key]
	if upd.AgentID != "" {
		r.AgentID = upd.AgentID
	}
	if !upd.LastConnectedAt.IsZero() {
		r.ConnectedAt = upd.LastConnectedAt.UTC()
		r.Welcomes++
	}
	rs.bots[key] = r
	return rs.save()
}

// save replaces the file through a temp file in the same directory so a crash
// leaves either the old or the new contents.
func (rs *resumeStore) save() error {
	if rs.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(resumeFile{Version: resumeVersion, Bots: rs.bots}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(rs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(rs.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), rs.path)
}
