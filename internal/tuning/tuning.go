package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"strider.ai/internal/nav/avoid"
	"strider.ai/internal/nav/movement"
	"strider.ai/internal/nav/probe"
)

//go:embed tuning.schema.json
var schemaSrc string

var schema = jsonschema.MustCompileString("tuning.schema.json", schemaSrc)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`
	StepHz          int    `yaml:"step_hz" json:"step_hz"`

	Probe    Probe    `yaml:"probe" json:"probe"`
	Avoid    Avoid    `yaml:"avoid" json:"avoid"`
	Movement Movement `yaml:"movement" json:"movement"`
}

type Probe struct {
	Retries         int     `yaml:"retries" json:"retries"`
	RetryDelayMs    int     `yaml:"retry_delay_ms" json:"retry_delay_ms"`
	GroundClearance float64 `yaml:"ground_clearance" json:"ground_clearance"`
	ProbeCount      int     `yaml:"probe_count" json:"probe_count"`
}

type Avoid struct {
	MaxAvoidDistance float64 `yaml:"max_avoid_distance" json:"max_avoid_distance"`
	AgentWidth       float64 `yaml:"agent_width" json:"agent_width"`
	AgentHeight      float64 `yaml:"agent_height" json:"agent_height"`
}

type Movement struct {
	StallTimeoutMs      int     `yaml:"stall_timeout_ms" json:"stall_timeout_ms"`
	StartupGraceMs      int     `yaml:"startup_grace_ms" json:"startup_grace_ms"`
	MotionEpsilon       float64 `yaml:"motion_epsilon" json:"motion_epsilon"`
	MoveEpsilon         float64 `yaml:"move_epsilon" json:"move_epsilon"`
	UnstickSpread       float64 `yaml:"unstick_spread" json:"unstick_spread"`
	UnstickWaitMs       int     `yaml:"unstick_wait_ms" json:"unstick_wait_ms"`
	UnstickSettleMs     int     `yaml:"unstick_settle_ms" json:"unstick_settle_ms"`
	NudgeDistance       float64 `yaml:"nudge_distance" json:"nudge_distance"`
	ProgressWindowMs    int     `yaml:"progress_window_ms" json:"progress_window_ms"`
	ProgressMinDistance float64 `yaml:"progress_min_distance" json:"progress_min_distance"`
	Tolerance           float64 `yaml:"tolerance" json:"tolerance"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		StepHz:          10,
		Probe: Probe{
			Retries:         probe.DefaultRetries,
			RetryDelayMs:    int(probe.DefaultRetryDelay / time.Millisecond),
			GroundClearance: probe.DefaultGroundClearance,
			ProbeCount:      avoid.DefaultProbeCount,
		},
		Avoid: Avoid{
			MaxAvoidDistance: avoid.DefaultMaxAvoidDistance,
			AgentWidth:       1.0,
			AgentHeight:      2.0,
		},
		Movement: Movement{
			StallTimeoutMs:  120000,
			StartupGraceMs:  2000,
			MotionEpsilon:   0.01,
			MoveEpsilon:     0.01,
			UnstickSpread:   1.0,
			UnstickWaitMs:   1000,
			UnstickSettleMs: 500,
			NudgeDistance:   0.25,
			Tolerance:       1.0,
		},
	}
}

// Load reads a tuning file, validates it against the embedded schema and
// overlays it on Defaults. Keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := Validate(raw); err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate checks a YAML document against the tuning schema.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	return nil
}

func (t Tuning) StepInterval() time.Duration {
	if t.StepHz <= 0 {
		return 100 * time.Millisecond
	}
	return time.Second / time.Duration(t.StepHz)
}

// NewScanner builds the retrying caster and beam scanner described by the probe section.
func (t Tuning) NewScanner(c probe.Caster, logger *log.Logger) *probe.Scanner {
	rays := probe.NewRetryCaster(c, t.Probe.Retries, ms(t.Probe.RetryDelayMs), logger)
	return probe.NewScanner(rays, t.Probe.GroundClearance)
}

func (t Tuning) AvoidConfig() avoid.Config {
	return avoid.Config{
		ProbeCount:       t.Probe.ProbeCount,
		MaxAvoidDistance: t.Avoid.MaxAvoidDistance,
	}
}

func (t Tuning) MovementConfig() movement.Config {
	m := t.Movement
	return movement.Config{
		StallTimeout:        ms(m.StallTimeoutMs),
		StartupGrace:        ms(m.StartupGraceMs),
		MotionEpsilon:       m.MotionEpsilon,
		MoveEpsilon:         m.MoveEpsilon,
		UnstickSpread:       m.UnstickSpread,
		UnstickWait:         ms(m.UnstickWaitMs),
		UnstickSettle:       ms(m.UnstickSettleMs),
		NudgeDistance:       m.NudgeDistance,
		ProgressWindow:      ms(m.ProgressWindowMs),
		ProgressMinDistance: m.ProgressMinDistance,
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
