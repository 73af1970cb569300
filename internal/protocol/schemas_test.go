package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"strider.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON marshals a Go message and decodes it back into generic JSON values.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile(t, "hello.schema.json")
	welcomeSchema := compile(t, "welcome.schema.json")
	reqSchema := compile(t, "req.schema.json")
	respSchema := compile(t, "resp.schema.json")
	updSchema := compile(t, "path_update.schema.json")
	escSchema := compile(t, "escalate.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "agent_name":"bot1",
	  "spawn":[0,0,0]
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "agent_id":"A1",
	  "session_id":"s1",
	  "step_hz":10
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var req any
	_ = json.Unmarshal([]byte(`{
	  "type":"REQ",
	  "protocol_version":"1.0",
	  "id":"r1",
	  "op":"MOVE",
	  "verb":"NAVIGATE_TO",
	  "goal":[10,0,0],
	  "options":{"speed":1}
	}`), &req)
	validate(reqSchema, req)

	var resp any
	_ = json.Unmarshal([]byte(`{
	  "type":"RESP",
	  "protocol_version":"1.0",
	  "id":"r1",
	  "ok":true,
	  "result":{"hit":true,"hit_id":"wall-1","hit_point":[5,0,1],"status":1}
	}`), &resp)
	validate(respSchema, resp)

	var upd any
	_ = json.Unmarshal([]byte(`{"type":"PATH_UPDATE","protocol_version":"1.0","agent_id":"A1","code":1}`), &upd)
	validate(updSchema, upd)

	var esc any
	_ = json.Unmarshal([]byte(`{
	  "type":"ESCALATE",
	  "protocol_version":"1.0",
	  "id":"e1",
	  "start":[0,0,0],
	  "goal":[10,0,0],
	  "width":1,
	  "height":2
	}`), &esc)
	validate(escSchema, esc)
}

func TestSchemas_RejectBadSamples(t *testing.T) {
	reqSchema := compile(t, "req.schema.json")
	respSchema := compile(t, "resp.schema.json")

	bad := []string{
		`{"type":"REQ","protocol_version":"1.0","id":"r1","op":"CAST_RAY","from":[0,0,0]}`,
		`{"type":"REQ","protocol_version":"1.0","id":"r1","op":"TELEPORT"}`,
		`{"type":"REQ","protocol_version":"1.0","id":"r1","op":"NUDGE","offset":[1,2]}`,
	}
	for _, s := range bad {
		var v any
		_ = json.Unmarshal([]byte(s), &v)
		if err := reqSchema.Validate(v); err == nil {
			t.Fatalf("expected rejection: %s", s)
		}
	}
	var v any
	_ = json.Unmarshal([]byte(`{"type":"RESP","protocol_version":"1.0","id":"r1","ok":false}`), &v)
	if err := respSchema.Validate(v); err == nil {
		t.Fatalf("failed RESP without code accepted")
	}
}

func TestSchemas_GoMessagesConform(t *testing.T) {
	reqSchema := compile(t, "req.schema.json")
	respSchema := compile(t, "resp.schema.json")
	updSchema := compile(t, "path_update.schema.json")

	from, to := protocol.Vec3{0, 0, 1}, protocol.Vec3{5, 0, 1}
	reqs := []protocol.ReqMsg{
		{Type: protocol.TypeReq, ProtocolVersion: protocol.Version, ID: "1", Op: protocol.OpCastRay, From: &from, To: &to},
		{Type: protocol.TypeReq, ProtocolVersion: protocol.Version, ID: "2", Op: protocol.OpSurface, ObjectID: "floor"},
		{Type: protocol.TypeReq, ProtocolVersion: protocol.Version, ID: "3", Op: protocol.OpMove, Verb: "PURSUE", Target: "t1"},
		{Type: protocol.TypeReq, ProtocolVersion: protocol.Version, ID: "4", Op: protocol.OpStop},
		{Type: protocol.TypeReq, ProtocolVersion: protocol.Version, ID: "5", Op: protocol.OpState},
		{Type: protocol.TypeReq, ProtocolVersion: protocol.Version, ID: "6", Op: protocol.OpNudge, Offset: &to},
	}
	for _, r := range reqs {
		if err := reqSchema.Validate(asJSON(t, r)); err != nil {
			t.Fatalf("req %s: %v", r.Op, err)
		}
	}

	ok, err := protocol.OKResp("1", protocol.StateResult{Pos: protocol.Vec3{1, 2, 3}})
	if err != nil {
		t.Fatalf("OKResp: %v", err)
	}
	if err := respSchema.Validate(asJSON(t, ok)); err != nil {
		t.Fatalf("ok resp: %v", err)
	}
	if err := respSchema.Validate(asJSON(t, protocol.ErrResp("2", protocol.ErrUnknownOp, "nope"))); err != nil {
		t.Fatalf("err resp: %v", err)
	}
	upd := protocol.PathUpdateMsg{Type: protocol.TypePathUpdate, ProtocolVersion: protocol.Version, AgentID: "a1", Code: 4}
	if err := updSchema.Validate(asJSON(t, upd)); err != nil {
		t.Fatalf("path update: %v", err)
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"PATH_UPDATE","protocol_version":"1.0","code":1}`))
	if err != nil || m.Type != protocol.TypePathUpdate || m.ProtocolVersion != protocol.Version {
		t.Fatalf("m=%+v err=%v", m, err)
	}
	if _, err := protocol.DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("expected error")
	}
}
