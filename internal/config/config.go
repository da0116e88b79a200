// Package config loads the engine configuration: round cap, gate
// thresholds, active context, file locations, and the evaluator roster.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/conclave/internal/evaluator"
	"github.com/ppiankov/conclave/internal/gate"
	"github.com/ppiankov/conclave/internal/model"
)

// EvaluatorConfig declares one evaluator in the roster.
// Kind "llm" uses the shared LLM settings with the given persona;
// kind "rules" is deterministic and needs no network.
type EvaluatorConfig struct {
	ID      string           `yaml:"id"`
	Kind    string           `yaml:"kind"`
	Persona string           `yaml:"persona,omitempty"`
	Rules   []evaluator.Rule `yaml:"rules,omitempty"`
}

// LLMSettings configures the shared OpenAI-compatible endpoint used by all
// llm-kind evaluators and the conditionality reviewer. The API key is read
// from the named environment variable, never stored in the file.
type LLMSettings struct {
	APIURL         string `yaml:"api_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Config holds all engine parameters.
type Config struct {
	MaxRounds  int               `yaml:"max_rounds"`
	Gate       gate.Config       `yaml:"gate"`
	Context    model.Context     `yaml:"context"`
	TierMap    string            `yaml:"tier_map"`
	Protocols  string            `yaml:"protocols"`
	WaiverDir  string            `yaml:"waiver_dir"`
	AuditLog   string            `yaml:"audit_log"`
	HistoryDB  string            `yaml:"history_db"`
	Review     bool              `yaml:"conditionality_review"`
	Evaluators []EvaluatorConfig `yaml:"evaluators"`
	LLM        LLMSettings       `yaml:"llm"`
}

// DefaultConfig returns the built-in engine configuration: three rounds,
// standard thresholds, and the six standard personas against a local
// OpenAI-compatible endpoint.
func DefaultConfig() *Config {
	return &Config{
		MaxRounds: 3,
		Gate:      gate.DefaultConfig(),
		Review:    true,
		Evaluators: []EvaluatorConfig{
			{ID: "sovereign", Kind: "llm", Persona: "You evaluate proposals for strategic autonomy and control. Dependencies on external actors that cannot be unwound are red lines."},
			{ID: "security", Kind: "llm", Persona: "You evaluate proposals for security exposure. Assume a capable adversary and rate how the proposal fails under attack."},
			{ID: "philosopher", Kind: "llm", Persona: "You evaluate proposals against stated values and long-term principles, not outcomes. Flag value violations even when profitable."},
			{ID: "economist", Kind: "llm", Persona: "You evaluate proposals for unit economics, pricing, and capital efficiency. Be concrete about margins and payback."},
			{ID: "operator", Kind: "llm", Persona: "You evaluate proposals for operational feasibility: staffing, timelines, and execution risk."},
			{ID: "historian", Kind: "llm", Persona: "You evaluate proposals against precedent: what happened when similar moves were tried, and what pattern this matches."},
		},
		LLM: LLMSettings{
			APIURL:         "http://localhost:11434/v1/chat/completions",
			APIKeyEnv:      "CONCLAVE_API_KEY",
			Model:          "llama3.1",
			MaxTokens:      800,
			TimeoutSeconds: 90,
		},
	}
}

// Load reads engine configuration from a YAML file. Empty path falls back
// to ~/.conclave/config.yaml. Missing file returns defaults. Invalid YAML
// returns an error.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = filepath.Join(home, ".conclave", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("config: max_rounds must be positive, got %d", c.MaxRounds)
	}
	if len(c.Evaluators) == 0 {
		return fmt.Errorf("config: no evaluators declared")
	}
	seen := make(map[string]bool, len(c.Evaluators))
	for _, e := range c.Evaluators {
		if e.ID == "" {
			return fmt.Errorf("config: evaluator with empty id")
		}
		if seen[e.ID] {
			return fmt.Errorf("config: duplicate evaluator id %q", e.ID)
		}
		seen[e.ID] = true
		switch e.Kind {
		case "llm", "rules":
		default:
			return fmt.Errorf("config: evaluator %s: unknown kind %q", e.ID, e.Kind)
		}
	}
	return nil
}

// llmConfig assembles the shared LLM call parameters.
func (c *Config) llmConfig() evaluator.LLMConfig {
	return evaluator.LLMConfig{
		APIURL:    c.LLM.APIURL,
		APIKey:    os.Getenv(c.LLM.APIKeyEnv),
		Model:     c.LLM.Model,
		MaxTokens: c.LLM.MaxTokens,
		Timeout:   time.Duration(c.LLM.TimeoutSeconds) * time.Second,
	}
}

// BuildPool assembles the evaluator pool from the roster.
func (c *Config) BuildPool() (*evaluator.Pool, error) {
	var list []evaluator.Evaluator
	for _, ec := range c.Evaluators {
		switch ec.Kind {
		case "llm":
			list = append(list, evaluator.NewLLM(ec.ID, ec.Persona, c.llmConfig()))
		case "rules":
			rb, err := evaluator.NewRuleBased(ec.ID, ec.Rules)
			if err != nil {
				return nil, fmt.Errorf("config: %w", err)
			}
			list = append(list, rb)
		}
	}
	return evaluator.NewPool(list, time.Duration(c.LLM.TimeoutSeconds)*time.Second), nil
}

// BuildReviewer assembles the conditionality reviewer, or nil when the
// review stage is disabled.
func (c *Config) BuildReviewer() *evaluator.LLMReviewer {
	if !c.Review {
		return nil
	}
	return evaluator.NewLLMReviewer(c.llmConfig())
}

// DefaultAuditPath returns the default audit log location.
func DefaultAuditPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "conclave-audit.jsonl")
	}
	return filepath.Join(home, ".conclave", "audit.jsonl")
}

// DefaultConfigYAML returns a commented YAML string for init-config.
func DefaultConfigYAML() string {
	return `# conclave engine configuration
# Generated by: conclave init-config

# Hard cap on deliberation rounds. The engine always terminates within this
# many rounds; termination at the cap without consensus is marked forced.
max_rounds: 3

# Compensable convergence thresholds, applied after the tier gate clears.
gate:
  confidence_threshold: 0.6
  positive_threshold: 0.5
  max_warnings: 2

# Active scope for waiver matching. A waiver restricted to a market,
# industry, or company size applies only when these match.
context:
  market: ""
  industry: ""
  company_size: ""

# File locations. Empty values use ~/.conclave/ defaults.
tier_map: ""
protocols: ""
waiver_dir: ""
audit_log: ""
history_db: ""

# Run the structural robustness review after the gate opens.
conditionality_review: true

# Evaluator roster. kind: llm uses the shared llm settings below with the
# given persona; kind: rules is deterministic (fields: contains, rating,
# confidence, reasoning; first match wins).
evaluators:
  - id: sovereign
    kind: llm
    persona: "You evaluate proposals for strategic autonomy and control."
  - id: economist
    kind: llm
    persona: "You evaluate proposals for unit economics and capital efficiency."

# Shared OpenAI-compatible endpoint. The API key is read from the named
# environment variable.
llm:
  api_url: http://localhost:11434/v1/chat/completions
  api_key_env: CONCLAVE_API_KEY
  model: llama3.1
  max_tokens: 800
  timeout_seconds: 90
`
}
