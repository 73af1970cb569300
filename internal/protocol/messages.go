package protocol

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is a point or direction on the wire: [x, y, z], Z up.
type Vec3 [3]float64

func V(v mgl64.Vec3) Vec3 { return Vec3(v) }

func (v Vec3) Mgl() mgl64.Vec3 { return mgl64.Vec3(v) }

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentName       string `json:"agent_name"`
	// Spawn places a fresh agent; ignored when resuming an existing one.
	Spawn   *Vec3  `json:"spawn,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id"`
	SessionID       string `json:"session_id,omitempty"`
	StepHz          int    `json:"step_hz"`
}

// REQ (client -> server). Which fields are set depends on Op.
type ReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Op              string `json:"op"`

	// CAST_RAY
	From *Vec3 `json:"from,omitempty"`
	To   *Vec3 `json:"to,omitempty"`

	// SURFACE
	ObjectID string `json:"object_id,omitempty"`

	// MOVE
	Verb     string         `json:"verb,omitempty"`
	Goal     *Vec3          `json:"goal,omitempty"`
	Target   string         `json:"target,omitempty"`
	Spread   *Vec3          `json:"spread,omitempty"`
	Distance float64        `json:"distance,omitempty"`
	Options  map[string]any `json:"options,omitempty"`

	// NUDGE
	Offset *Vec3 `json:"offset,omitempty"`
}

// RESP (server -> client)
type RespMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ID              string          `json:"id"`
	OK              bool            `json:"ok"`
	Code            string          `json:"code,omitempty"`
	Message         string          `json:"message,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
}

type CastRayResult struct {
	Hit      bool   `json:"hit"`
	HitID    string `json:"hit_id,omitempty"`
	HitPoint Vec3   `json:"hit_point"`
	Status   int    `json:"status"`
}

type SurfaceResult struct {
	Walkable bool `json:"walkable"`
}

type StateResult struct {
	Pos    Vec3 `json:"pos"`
	Vel    Vec3 `json:"vel"`
	AngVel Vec3 `json:"ang_vel"`
}

type TargetResult struct {
	Found bool `json:"found"`
	Pos   Vec3 `json:"pos"`
}

// PATH_UPDATE (server -> client): a movement status raised by the host.
type PathUpdateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id"`
	Code            int    `json:"code"`
}

// ESCALATE (client -> server): hand a segment the local planner could not
// solve to the global path solver.
type EscalateMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	AgentID         string  `json:"agent_id,omitempty"`
	Start           Vec3    `json:"start"`
	Goal            Vec3    `json:"goal"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	AgentType       string  `json:"agent_type,omitempty"`
}

func OKResp(id string, result any) (RespMsg, error) {
	m := RespMsg{Type: TypeResp, ProtocolVersion: Version, ID: id, OK: true}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return m, err
		}
		m.Result = b
	}
	return m, nil
}

func ErrResp(id, code, message string) RespMsg {
	return RespMsg{Type: TypeResp, ProtocolVersion: Version, ID: id, Code: code, Message: message}
}
