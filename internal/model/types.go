package model

import "fmt"

// Rating is an evaluator's verdict on a proposal.
type Rating string

const (
	Block   Rating = "BLOCK"
	Warn    Rating = "WARN"
	Accept  Rating = "ACCEPT"
	Endorse Rating = "ENDORSE"
)

// ParseRating validates a rating string at the boundary.
// Unknown ratings are an error, never silently coerced.
func ParseRating(s string) (Rating, error) {
	switch Rating(s) {
	case Block, Warn, Accept, Endorse:
		return Rating(s), nil
	default:
		return "", fmt.Errorf("unknown rating %q", s)
	}
}

// Positive reports whether the rating counts toward consensus.
func (r Rating) Positive() bool {
	return r == Accept || r == Endorse
}

// Evaluation is one evaluator's opinion for one round.
// Produced fresh each round; superseded, never mutated, by the next round's set.
type Evaluation struct {
	EvaluatorID    string   `json:"evaluator_id"`
	Rating         Rating   `json:"rating"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	AttackVector   string   `json:"attack_vector,omitempty"`
	MitigationPlan string   `json:"mitigation_plan,omitempty"`
	Evidence       []string `json:"evidence,omitempty"`
}

// Validate checks the evaluation's invariants.
func (e *Evaluation) Validate() error {
	if e.EvaluatorID == "" {
		return fmt.Errorf("evaluation missing evaluator_id")
	}
	if _, err := ParseRating(string(e.Rating)); err != nil {
		return fmt.Errorf("evaluation from %s: %w", e.EvaluatorID, err)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("evaluation from %s: confidence %.2f outside [0,1]", e.EvaluatorID, e.Confidence)
	}
	return nil
}

// TensionStatus is the lifecycle state of a detected conflict.
type TensionStatus string

const (
	TensionActive    TensionStatus = "active"
	TensionResolved  TensionStatus = "resolved"
	TensionEscalated TensionStatus = "escalated"
)

// Tension is a detected conflict between two evaluators' ratings.
// Escalated tensions are retained for audit but no longer block attempts.
type Tension struct {
	ProtocolID  string        `json:"protocol_id"`
	EvaluatorA  string        `json:"evaluator_a"`
	EvaluatorB  string        `json:"evaluator_b"`
	Description string        `json:"description"`
	Status      TensionStatus `json:"status"`
	Resolution  string        `json:"resolution,omitempty"`
}

// Decision is the convergence gate's structured outcome.
type Decision string

const (
	Tier1BlockNoWaiver       Decision = "TIER1_BLOCK_NO_WAIVER"
	ValuesEscalationRequired Decision = "VALUES_ESCALATION_REQUIRED"
	GatesPassed              Decision = "GATES_PASSED"

	// Fallback decisions are produced only by the documented majority-only
	// path used when the tiered gate check itself fails. The fallback does
	// not consult waivers.
	FallbackMajorityPass Decision = "FALLBACK_MAJORITY_PASS"
	FallbackMajorityFail Decision = "FALLBACK_MAJORITY_FAIL"
)

// AppliedWaiver records one waiver that covered a block during gating.
type AppliedWaiver struct {
	WaiverID    string `json:"waiver_id"`
	EvaluatorID string `json:"evaluator_id"`
}

// GateStatus is the convergence gate's structured result. Derived per
// invocation, never persisted; a pure function of its inputs.
type GateStatus struct {
	CanProceed           bool            `json:"can_proceed"`
	Decision             Decision        `json:"decision"`
	Tier1Blocks          []string        `json:"tier1_blocks,omitempty"`
	Tier2Blocks          []string        `json:"tier2_blocks,omitempty"`
	Tier3Blocks          []string        `json:"tier3_blocks,omitempty"`
	ValuesBlocks         []string        `json:"values_blocks,omitempty"`
	WaiversApplied       []AppliedWaiver `json:"waivers_applied,omitempty"`
	RequiresValuesReport bool            `json:"requires_values_report,omitempty"`
	Message              string          `json:"message"`
}

// ConvergenceStatus is one round's terminal verdict. Only the final
// instance survives into finalization.
type ConvergenceStatus struct {
	Converged     bool        `json:"converged"`
	Reason        string      `json:"reason"`
	RoundCount    int         `json:"round_count"`
	AvgConfidence float64     `json:"avg_confidence"`
	PositivePct   float64     `json:"positive_percentage"`
	Forced        bool        `json:"forced"`
	Gate          *GateStatus `json:"gate_status,omitempty"`
}

// Verdict is the conditionality review's structural assessment.
type Verdict string

const (
	StructurallyCredible Verdict = "STRUCTURALLY_CREDIBLE"
	FragileConsensus     Verdict = "FRAGILE_CONSENSUS"
	ZombieRisk           Verdict = "ZOMBIE_RISK"
)

// ParseVerdict validates a verdict string at the boundary.
func ParseVerdict(s string) (Verdict, error) {
	switch Verdict(s) {
	case StructurallyCredible, FragileConsensus, ZombieRisk:
		return Verdict(s), nil
	default:
		return "", fmt.Errorf("unknown verdict %q", s)
	}
}

// MechanismPatch is an explicit trigger/action/authority tuple merged into
// the proposal to satisfy the conditionality gate.
type MechanismPatch struct {
	Trigger   string `json:"trigger"`
	Action    string `json:"action"`
	Authority string `json:"authority"`
}

// ConditionalityReview is produced exactly once, after the main gate opens.
type ConditionalityReview struct {
	Verdict     Verdict         `json:"verdict"`
	FailedTests []string        `json:"failed_tests,omitempty"`
	Critique    string          `json:"critique"`
	Patch       *MechanismPatch `json:"mechanism_patch,omitempty"`
}
