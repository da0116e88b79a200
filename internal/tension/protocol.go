// Package tension detects conflicts between evaluator ratings and attempts
// bounded automatic resolution. Detection is purely derived from the current
// evaluation set; resolution is sequential and budget-capped so total work
// per round stays bounded.
package tension

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/conclave/internal/model"
)

// defaultMaxIterations caps resolution attempts for protocols that omit one.
const defaultMaxIterations = 3

// Trigger is the pairwise rating condition that activates a protocol.
// A zero trigger means "opposing polarity": one side blocks while the
// other endorses, in either direction.
type Trigger struct {
	RatingA string `yaml:"rating_a"`
	RatingB string `yaml:"rating_b"`
}

func (t Trigger) zero() bool {
	return t.RatingA == "" && t.RatingB == ""
}

// Protocol is one declarative tension protocol between two named evaluators.
type Protocol struct {
	ID                  string   `yaml:"protocol_id"`
	Agents              []string `yaml:"agents"`
	Trigger             Trigger  `yaml:"trigger"`
	MaxIterations       int      `yaml:"max_iterations"`
	ResolutionSteps     []string `yaml:"resolution_steps"`
	EscalationCondition string   `yaml:"escalation_condition"`
}

// validate checks a protocol definition. Called at load time; a failing
// protocol is skipped, never fatal.
func (p *Protocol) validate() error {
	if p.ID == "" {
		return fmt.Errorf("missing protocol_id")
	}
	if len(p.Agents) != 2 {
		return fmt.Errorf("protocol %s: expected exactly 2 agents, got %d", p.ID, len(p.Agents))
	}
	if p.Agents[0] == "" || p.Agents[1] == "" {
		return fmt.Errorf("protocol %s: empty agent name", p.ID)
	}
	if !p.Trigger.zero() {
		if _, err := model.ParseRating(p.Trigger.RatingA); err != nil {
			return fmt.Errorf("protocol %s trigger: %w", p.ID, err)
		}
		if _, err := model.ParseRating(p.Trigger.RatingB); err != nil {
			return fmt.Errorf("protocol %s trigger: %w", p.ID, err)
		}
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("protocol %s: negative max_iterations", p.ID)
	}
	return nil
}

type protocolFile struct {
	Protocols []Protocol `yaml:"protocols"`
}

// DefaultProtocolsYAML returns a commented YAML string for init-config.
func DefaultProtocolsYAML() string {
	return `# conclave tension protocols
# Generated by: conclave init-config
#
# A protocol activates when its two agents' ratings match the trigger
# (omit the trigger for "opposing polarity": one blocks, one endorses).
# Resolution steps are applied as proposal amendments, one per round,
# up to max_iterations; an exhausted protocol escalates to humans.

protocols:
  - protocol_id: growth-vs-autonomy
    agents: [economist, sovereign]
    trigger:
      rating_a: ENDORSE
      rating_b: BLOCK
    max_iterations: 3
    resolution_steps:
      - "Add an unwind clause capping the dependency at twelve months."
      - "Split the proposal so the reversible part ships first."
      - "Price the autonomy loss explicitly and re-evaluate."
    escalation_condition: "No structure preserves both the upside and the exit."
`
}

// LoadProtocols reads tension protocol definitions from a YAML file.
// Malformed entries are skipped with a warning; a missing file means no
// protocols. Only parse failure of the file itself is an error.
func LoadProtocols(path string) ([]Protocol, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read protocols: %w", err)
	}

	var f protocolFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse protocols: %w", err)
	}

	var out []Protocol
	for i := range f.Protocols {
		p := f.Protocols[i]
		if err := p.validate(); err != nil {
			fmt.Fprintf(os.Stderr, "tension: skipping malformed protocol: %v\n", err)
			continue
		}
		if p.MaxIterations == 0 {
			p.MaxIterations = defaultMaxIterations
		}
		out = append(out, p)
	}
	return out, nil
}
