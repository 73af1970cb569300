package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeReq        = "REQ"
	TypeResp       = "RESP"
	TypePathUpdate = "PATH_UPDATE"
	TypeEscalate   = "ESCALATE"
)

// Request ops carried by REQ.
const (
	OpCastRay = "CAST_RAY"
	OpSurface = "SURFACE"
	OpMove    = "MOVE"
	OpStop    = "STOP"
	OpState   = "STATE"
	OpTarget  = "TARGET"
	OpNudge   = "NUDGE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
