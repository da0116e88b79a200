package scenario

import (
	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/waiver"
)

// ScenarioEvaluation is one evaluator's rating within a test case.
type ScenarioEvaluation struct {
	Evaluator  string  `yaml:"evaluator"`
	Rating     string  `yaml:"rating"`
	Confidence float64 `yaml:"confidence,omitempty"`
	Reasoning  string  `yaml:"reasoning,omitempty"`
}

// Expect is the asserted gate outcome for a case.
type Expect struct {
	Decision   string `yaml:"decision"`
	CanProceed *bool  `yaml:"can_proceed,omitempty"`
}

// Case is one gate check within a scenario.
type Case struct {
	Name        string               `yaml:"name,omitempty"`
	Evaluations []ScenarioEvaluation `yaml:"evaluations"`
	Expect      Expect               `yaml:"expect"`
}

// Scenario is a named collection of gate test cases sharing a tier map,
// context, and waiver set.
type Scenario struct {
	Name    string            `yaml:"name"`
	Tiers   map[string]string `yaml:"tiers,omitempty"`
	Context model.Context     `yaml:"context,omitempty"`
	Waivers []waiver.Waiver   `yaml:"waivers,omitempty"`
	Cases   []Case            `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index      int    `json:"index"`
	Name       string `json:"name,omitempty"`
	Passed     bool   `json:"passed"`
	Expected   string `json:"expected"`
	Actual     string `json:"actual"`
	CanProceed bool   `json:"can_proceed"`
	Message    string `json:"message"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
