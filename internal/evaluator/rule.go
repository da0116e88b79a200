package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/conclave/internal/model"
)

// Rule is one declarative evaluation rule, evaluated in order (first match
// wins) against the proposal body and amendments.
type Rule struct {
	Contains   string  `yaml:"contains"`
	Rating     string  `yaml:"rating"`
	Confidence float64 `yaml:"confidence"`
	Reasoning  string  `yaml:"reasoning"`
}

// RuleBased is a deterministic evaluator driven by substring rules. Useful
// for CI, scenario replay, and as a cheap stand-in for an LLM persona.
type RuleBased struct {
	id    string
	rules []Rule
}

// NewRuleBased creates a rule-based evaluator. Rules with unknown ratings
// are rejected up front.
func NewRuleBased(id string, rules []Rule) (*RuleBased, error) {
	for i, r := range rules {
		if _, err := model.ParseRating(r.Rating); err != nil {
			return nil, fmt.Errorf("rule %d for %s: %w", i, id, err)
		}
	}
	return &RuleBased{id: id, rules: rules}, nil
}

// ID returns the evaluator identity.
func (r *RuleBased) ID() string { return r.id }

// Evaluate matches the proposal text against the rules. No match yields a
// neutral ACCEPT.
func (r *RuleBased) Evaluate(_ context.Context, req Request) (model.Evaluation, error) {
	text := req.Proposal.Title + "\n" + req.Proposal.Body + "\n" + strings.Join(req.Proposal.Amendments, "\n")

	for _, rule := range r.rules {
		if rule.Contains != "" && strings.Contains(text, rule.Contains) {
			conf := rule.Confidence
			if conf == 0 {
				conf = 0.7
			}
			reasoning := rule.Reasoning
			if reasoning == "" {
				reasoning = fmt.Sprintf("matched rule %q", rule.Contains)
			}
			return model.Evaluation{
				Rating:     model.Rating(rule.Rating),
				Confidence: conf,
				Reasoning:  reasoning,
			}, nil
		}
	}

	return model.Evaluation{
		Rating:     model.Accept,
		Confidence: 0.6,
		Reasoning:  "no rule matched; acceptable by default",
	}, nil
}
