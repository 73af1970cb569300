package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrDisconnected = errors.New("disconnected before response")
	ErrClosed       = errors.New("session closed")
)

// Status is a point-in-time view of a session.
type Status struct {
	Connected      bool   `json:"connected"`
	AgentID        string `json:"agent_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	URL            string `json:"url"`
	StepHz         int    `json:"step_hz,omitempty"`
	Pending        int    `json:"pending"`
	DroppedUpdates uint64 `json:"dropped_updates"`
	LastError      string `json:"last_error,omitempty"`
}

// RemoteError is a failed RESP.
type RemoteError struct {
	Op      string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}
