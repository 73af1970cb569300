package bridge

import (
	"fmt"
	"log"
	"sync"
	"time"

	"strider.ai/internal/protocol"
)

type Config struct {
	URL            string
	StateFile      string
	RequestTimeout time.Duration
	MaxSessions    int
	Logger         *log.Logger
}

// Manager owns one Session per bot name and remembers each bot's agent ID in
// StateFile so a restarted bot resumes the same host agent.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
	resume   *resumeStore

	closed bool
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("empty host ws url")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	rs, err := openResumeStore(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:      cfg,
		sessions: map[string]*Session{},
		resume:   rs,
	}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

// Session returns the started session for key, creating it on first use.
func (m *Manager) Session(key string, spawn *protocol.Vec3) (*Session, error) {
	if key == "" {
		key = "default"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("bridge manager closed")
	}
	if s := m.sessions[key]; s != nil {
		return s, nil
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		return nil, fmt.Errorf("too many sessions (max %d)", m.cfg.MaxSessions)
	}

	s := NewSession(SessionConfig{
		Key:            key,
		URL:            m.cfg.URL,
		AgentIDHint:    m.resume.get(key).AgentID,
		Spawn:          spawn,
		RequestTimeout: m.cfg.RequestTimeout,
		Logger:         m.cfg.Logger,
	}, m.onSessionUpdate)
	m.sessions[key] = s
	s.Start()
	return s, nil
}

// LastConnected reports when key last completed a handshake, as persisted.
func (m *Manager) LastConnected(key string) (agentID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.resume.get(key)
	return r.AgentID, r.ConnectedAt
}

func (m *Manager) onSessionUpdate(key string, upd sessionUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	// Updates come from WELCOME only, so saving the whole file each time is fine.
	if err := m.resume.record(key, upd); err != nil && m.cfg.Logger != nil {
		m.cfg.Logger.Printf("save resume file: %v", err)
	}
}
