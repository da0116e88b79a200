// Package scenario runs YAML-defined gate assertion suites: each case feeds
// a fixed evaluation set through the tiered convergence gate and asserts the
// resulting decision. Used by `conclave check` to validate tier maps and
// waiver configurations before they govern real deliberations.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/conclave/internal/gate"
	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/tier"
	"github.com/ppiankov/conclave/internal/waiver"
)

// Run evaluates all cases in a scenario. Cases are independent: each gets a
// fresh gate check against the scenario's shared tier map, context, and
// waivers. Scenario waivers with no explicit status default to active.
func Run(s *Scenario) (*RunResult, error) {
	tiers, err := tierMap(s.Tiers)
	if err != nil {
		return nil, err
	}

	waivers := make([]waiver.Waiver, len(s.Waivers))
	copy(waivers, s.Waivers)
	for i := range waivers {
		if waivers[i].Status == "" {
			waivers[i].Status = waiver.StatusActive
		}
	}
	reg := waiver.NewRegister(waivers, time.Now().UTC())

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		evals, err := evaluations(c.Evaluations)
		if err != nil {
			return nil, fmt.Errorf("scenario %q case %d: %w", s.Name, i+1, err)
		}

		status := gate.Evaluate(evals, tiers, reg, s.Context)

		cr := CaseResult{
			Index:      i + 1,
			Name:       c.Name,
			Expected:   c.Expect.Decision,
			Actual:     string(status.Decision),
			CanProceed: status.CanProceed,
			Message:    status.Message,
		}

		cr.Passed = cr.Actual == cr.Expected
		if c.Expect.CanProceed != nil && status.CanProceed != *c.Expect.CanProceed {
			cr.Passed = false
		}
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result, nil
}

// LoadAndRun loads a scenario YAML file and runs it.
func LoadAndRun(path string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	result, err := Run(&s)
	if err != nil {
		return nil, err
	}
	result.File = path

	return result, nil
}

// tierMap builds a tier.Map from the scenario's evaluator → tier names.
// An empty map means the built-in defaults.
func tierMap(names map[string]string) (*tier.Map, error) {
	if len(names) == 0 {
		return tier.DefaultMap(), nil
	}
	m := &tier.Map{Evaluators: make(map[string]tier.Assignment, len(names))}
	for id, name := range names {
		t, err := tier.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("tiers entry %q: %w", id, err)
		}
		m.Evaluators[id] = tier.Assignment{Tier: t}
	}
	return m, nil
}

func evaluations(in []ScenarioEvaluation) ([]model.Evaluation, error) {
	out := make([]model.Evaluation, 0, len(in))
	for _, se := range in {
		r, err := model.ParseRating(se.Rating)
		if err != nil {
			return nil, fmt.Errorf("evaluator %q: %w", se.Evaluator, err)
		}
		conf := se.Confidence
		if conf == 0 {
			conf = 0.8
		}
		out = append(out, model.Evaluation{
			EvaluatorID: se.Evaluator,
			Rating:      r,
			Confidence:  conf,
			Reasoning:   se.Reasoning,
		})
	}
	return out, nil
}
