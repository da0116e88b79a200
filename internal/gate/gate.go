// Package gate implements the tiered convergence gate: a pure function of
// the evaluation set, the tier map, the currently-valid waivers, and the
// active context. The tier check is non-compensatory — a tier1 or
// values_escalation BLOCK without a matching waiver closes the gate no
// matter how many other evaluators are positive.
package gate

import (
	"fmt"
	"os"
	"sort"

	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/tier"
	"github.com/ppiankov/conclave/internal/waiver"
)

// Config holds the compensable convergence thresholds applied only after
// the non-compensatory tier check clears.
type Config struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	PositiveThreshold   float64 `yaml:"positive_threshold"`
	MaxWarnings         int     `yaml:"max_warnings"`
}

// DefaultConfig returns the built-in convergence thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		PositiveThreshold:   0.5,
		MaxWarnings:         2,
	}
}

// Evaluate runs the tiered gate check. It never fails on a well-formed
// evaluation set; an internal failure in the tiered path degrades to the
// documented majority-only fallback rather than aborting, so the pipeline
// always produces a decision.
func Evaluate(evals []model.Evaluation, tiers *tier.Map, reg *waiver.Register, ctx model.Context) (status model.GateStatus) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "gate: tiered check failed (%v), falling back to majority rule\n", r)
			status = FallbackMajority(evals)
		}
	}()
	return evaluateTiered(evals, tiers, reg, ctx)
}

func evaluateTiered(evals []model.Evaluation, tiers *tier.Map, reg *waiver.Register, ctx model.Context) model.GateStatus {
	var status model.GateStatus

	// Step 1: partition BLOCK evaluations by tier. Sorted for deterministic
	// output and deterministic waiver matching order.
	sorted := make([]model.Evaluation, len(evals))
	copy(sorted, evals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EvaluatorID < sorted[j].EvaluatorID })

	var unwaivedTier1, unwaivedValues []string
	for _, e := range sorted {
		if e.Rating != model.Block {
			continue
		}
		switch tiers.For(e.EvaluatorID).Tier {
		case tier.Tier1:
			status.Tier1Blocks = append(status.Tier1Blocks, e.EvaluatorID)
			if w := reg.AppliesTo(e.EvaluatorID, "", ctx); w != nil {
				status.WaiversApplied = append(status.WaiversApplied, model.AppliedWaiver{
					WaiverID:    w.ID,
					EvaluatorID: e.EvaluatorID,
				})
			} else {
				unwaivedTier1 = append(unwaivedTier1, e.EvaluatorID)
			}
		case tier.ValuesEscalation:
			status.ValuesBlocks = append(status.ValuesBlocks, e.EvaluatorID)
			if w := reg.AppliesTo(e.EvaluatorID, "", ctx); w != nil {
				status.WaiversApplied = append(status.WaiversApplied, model.AppliedWaiver{
					WaiverID:    w.ID,
					EvaluatorID: e.EvaluatorID,
				})
			} else {
				unwaivedValues = append(unwaivedValues, e.EvaluatorID)
			}
		case tier.Tier2:
			status.Tier2Blocks = append(status.Tier2Blocks, e.EvaluatorID)
		case tier.Tier3:
			status.Tier3Blocks = append(status.Tier3Blocks, e.EvaluatorID)
		}
	}

	// Steps 3-4: non-compensatory gates.
	if len(unwaivedTier1) > 0 {
		status.CanProceed = false
		status.Decision = model.Tier1BlockNoWaiver
		status.Message = fmt.Sprintf("tier1 block without waiver: %v", unwaivedTier1)
		return status
	}
	if len(unwaivedValues) > 0 {
		status.CanProceed = false
		status.Decision = model.ValuesEscalationRequired
		status.RequiresValuesReport = true
		status.Message = fmt.Sprintf("values escalation required: %v", unwaivedValues)
		return status
	}

	// Step 5: gates passed. Tier2 blocks require explicit tradeoff
	// documentation downstream; tier3 blocks are advisory. Neither closes
	// the gate.
	status.CanProceed = true
	status.Decision = model.GatesPassed
	switch {
	case len(status.Tier2Blocks) > 0:
		status.Message = fmt.Sprintf("gates passed; tier2 blocks require tradeoff documentation: %v", status.Tier2Blocks)
	case len(status.Tier3Blocks) > 0:
		status.Message = fmt.Sprintf("gates passed; tier3 advisory blocks: %v", status.Tier3Blocks)
	default:
		status.Message = "gates passed"
	}
	return status
}

// Consensus is the result of the compensable criteria check.
type Consensus struct {
	Met           bool
	Reason        string
	AvgConfidence float64
	PositivePct   float64
	WarnCount     int
}

// CheckConsensus applies the ordinary majority/threshold checks. These are
// compensable and run only after the non-compensatory gate opened.
func CheckConsensus(evals []model.Evaluation, cfg Config) Consensus {
	var c Consensus
	if len(evals) == 0 {
		c.Reason = "no evaluations"
		return c
	}

	var confSum float64
	var positives int
	for _, e := range evals {
		confSum += e.Confidence
		if e.Rating.Positive() {
			positives++
		}
		if e.Rating == model.Warn {
			c.WarnCount++
		}
	}
	c.AvgConfidence = confSum / float64(len(evals))
	c.PositivePct = float64(positives) / float64(len(evals))

	switch {
	case c.AvgConfidence < cfg.ConfidenceThreshold:
		c.Reason = fmt.Sprintf("average confidence %.2f below threshold %.2f", c.AvgConfidence, cfg.ConfidenceThreshold)
	case c.PositivePct < cfg.PositiveThreshold:
		c.Reason = fmt.Sprintf("positive fraction %.2f below threshold %.2f", c.PositivePct, cfg.PositiveThreshold)
	case c.WarnCount > cfg.MaxWarnings:
		c.Reason = fmt.Sprintf("%d warnings exceed bound %d", c.WarnCount, cfg.MaxWarnings)
	default:
		c.Met = true
		c.Reason = "consensus criteria met"
	}
	return c
}
