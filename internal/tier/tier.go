// Package tier holds the static non-compensation tier map. A tier governs
// whether an evaluator's BLOCK can be overridden by other positive ratings:
// tier1 and values_escalation blocks are non-compensatory and gate the whole
// deliberation unless a matching waiver applies.
package tier

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Tier is the non-compensation class of an evaluator.
type Tier string

const (
	Tier1            Tier = "tier1"
	Tier2            Tier = "tier2"
	Tier3            Tier = "tier3"
	ValuesEscalation Tier = "values_escalation"
)

// ParseTier validates a tier string from configuration.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case Tier1, Tier2, Tier3, ValuesEscalation:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// BlockResolution is the policy applied when an evaluator of this tier blocks.
type BlockResolution string

const (
	RedesignOrWaiver           BlockResolution = "REDESIGN_OR_WAIVER"
	RedesignOrExplicitTradeoff BlockResolution = "REDESIGN_OR_EXPLICIT_TRADEOFF"
	DocumentAndProceed         BlockResolution = "DOCUMENT_AND_PROCEED"
	EscalateValuesReport       BlockResolution = "ESCALATE_VALUES_REPORT"
)

// Assignment binds one evaluator to a tier and its block policy.
type Assignment struct {
	Tier            Tier            `yaml:"tier"`
	BlockResolution BlockResolution `yaml:"block_resolution"`
}

// Map is the static evaluator → tier configuration.
type Map struct {
	Evaluators map[string]Assignment `yaml:"evaluators"`
}

// For returns the assignment for an evaluator. Evaluators absent from the
// map default to tier2: their blocks are recorded and require explicit
// tradeoff documentation, but an unconfigured evaluator cannot hard-veto.
func (m *Map) For(evaluatorID string) Assignment {
	if m != nil {
		if a, ok := m.Evaluators[evaluatorID]; ok {
			return a
		}
	}
	return Assignment{Tier: Tier2, BlockResolution: RedesignOrExplicitTradeoff}
}

// DefaultMap returns the built-in tier map.
func DefaultMap() *Map {
	return &Map{
		Evaluators: map[string]Assignment{
			"sovereign":   {Tier: Tier1, BlockResolution: RedesignOrWaiver},
			"security":    {Tier: Tier1, BlockResolution: RedesignOrWaiver},
			"philosopher": {Tier: ValuesEscalation, BlockResolution: EscalateValuesReport},
			"economist":   {Tier: Tier2, BlockResolution: RedesignOrExplicitTradeoff},
			"operator":    {Tier: Tier2, BlockResolution: RedesignOrExplicitTradeoff},
			"historian":   {Tier: Tier3, BlockResolution: DocumentAndProceed},
		},
	}
}

// Load reads the tier map from a YAML file. Empty path falls back to
// ~/.conclave/tiers.yaml. Missing file returns defaults. Invalid YAML or an
// unknown tier string returns an error.
func Load(path string) (*Map, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultMap(), nil
		}
		path = filepath.Join(home, ".conclave", "tiers.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultMap(), nil
		}
		return nil, fmt.Errorf("read tier map: %w", err)
	}

	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse tier map: %w", err)
	}
	if len(m.Evaluators) == 0 {
		return DefaultMap(), nil
	}

	for id, a := range m.Evaluators {
		if _, err := ParseTier(string(a.Tier)); err != nil {
			return nil, fmt.Errorf("tier map entry %q: %w", id, err)
		}
		if a.BlockResolution == "" {
			a.BlockResolution = defaultResolution(a.Tier)
			m.Evaluators[id] = a
		}
	}

	return &m, nil
}

// DefaultMapYAML returns a commented YAML string for init-config.
func DefaultMapYAML() string {
	return `# conclave tier map
# Generated by: conclave init-config
#
# Tiers control whether a BLOCK can be outvoted:
#   tier1              hard veto; only a waiver lets the gate open
#   tier2              block requires an explicit documented tradeoff
#   tier3              block is recorded, deliberation proceeds
#   values_escalation  hard veto routed to a values report, waivable
#
# Evaluators absent from this map default to tier2.

evaluators:
  sovereign:
    tier: tier1
    block_resolution: REDESIGN_OR_WAIVER
  security:
    tier: tier1
    block_resolution: REDESIGN_OR_WAIVER
  philosopher:
    tier: values_escalation
    block_resolution: ESCALATE_VALUES_REPORT
  economist:
    tier: tier2
    block_resolution: REDESIGN_OR_EXPLICIT_TRADEOFF
  operator:
    tier: tier2
    block_resolution: REDESIGN_OR_EXPLICIT_TRADEOFF
  historian:
    tier: tier3
    block_resolution: DOCUMENT_AND_PROCEED
`
}

func defaultResolution(t Tier) BlockResolution {
	switch t {
	case Tier1:
		return RedesignOrWaiver
	case Tier2:
		return RedesignOrExplicitTradeoff
	case ValuesEscalation:
		return EscalateValuesReport
	default:
		return DocumentAndProceed
	}
}
