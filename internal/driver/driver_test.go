package driver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/conclave/internal/audit"
	"github.com/ppiankov/conclave/internal/evaluator"
	"github.com/ppiankov/conclave/internal/gate"
	"github.com/ppiankov/conclave/internal/history"
	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/tension"
	"github.com/ppiankov/conclave/internal/tier"
	"github.com/ppiankov/conclave/internal/waiver"
)

func staticPool(evals ...model.Evaluation) *evaluator.Pool {
	var list []evaluator.Evaluator
	for _, e := range evals {
		list = append(list, evaluator.NewStatic(e.EvaluatorID, e))
	}
	return evaluator.NewPool(list, time.Second)
}

func proposal() model.Proposal {
	return model.Proposal{ID: "p-1", Title: "enter market", Body: "expand into the EU segment"}
}

func TestRunConvergesFirstRound(t *testing.T) {
	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "sound"},
		model.Evaluation{EvaluatorID: "operator", Rating: model.Accept, Confidence: 0.8, Reasoning: "workable"},
	)
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Convergence.Converged || out.Convergence.Forced {
		t.Errorf("convergence = %+v, want converged and not forced", out.Convergence)
	}
	if out.Convergence.RoundCount != 1 {
		t.Errorf("rounds = %d, want 1", out.Convergence.RoundCount)
	}
	if out.Gate.Decision != model.GatesPassed {
		t.Errorf("decision = %s", out.Gate.Decision)
	}
}

func TestRunForcedAtCapOnPersistentBlock(t *testing.T) {
	pool := staticPool(
		model.Evaluation{EvaluatorID: "sovereign", Rating: model.Block, Confidence: 0.9, Reasoning: "red line"},
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "profitable"},
	)
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatal(err)
	}
	if !out.Convergence.Converged {
		t.Error("cap must terminate the deliberation")
	}
	if !out.Convergence.Forced {
		t.Error("termination at cap without consensus must be marked forced")
	}
	if out.Convergence.RoundCount != 3 {
		t.Errorf("rounds = %d, want 3", out.Convergence.RoundCount)
	}
	if len(out.Rounds) != 3 {
		t.Errorf("round records = %d, want 3", len(out.Rounds))
	}
	if out.Gate.Decision != model.Tier1BlockNoWaiver {
		t.Errorf("decision = %s", out.Gate.Decision)
	}
	if out.Gate.CanProceed {
		t.Error("unwaived tier1 block must not proceed")
	}
}

func TestRunForcedWithGateOpenButNoConsensus(t *testing.T) {
	// Gate opens (only a tier2 block) but the positive fraction stays below
	// threshold, so the cap forces termination with the gate's decision.
	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Block, Confidence: 0.9, Reasoning: "margin too thin"},
		model.Evaluation{EvaluatorID: "operator", Rating: model.Accept, Confidence: 0.7, Reasoning: "feasible"},
		model.Evaluation{EvaluatorID: "historian", Rating: model.Warn, Confidence: 0.6, Reasoning: "precedent"},
	)
	d, err := New(pool, Config{MaxRounds: 2, Gate: gate.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatal(err)
	}
	if !out.Convergence.Forced {
		t.Error("no consensus by cap should force")
	}
	if !out.Gate.CanProceed || out.Gate.Decision != model.GatesPassed {
		t.Errorf("tier2 block should not close the gate: %+v", out.Gate)
	}
	if out.Convergence.RoundCount != 2 {
		t.Errorf("rounds = %d, want 2", out.Convergence.RoundCount)
	}
}

func TestRunWaiverUnblocks(t *testing.T) {
	dir := t.TempDir()
	expiry := time.Now().UTC().Add(24 * time.Hour)
	w := waiver.Waiver{
		ID:                 "wv-abc123",
		GrantedBy:          "board",
		Reason:             "accepted sovereignty tradeoff",
		LinkedEvaluatorIDs: []string{"sovereign"},
		ExpiryDate:         &expiry,
		Status:             waiver.StatusActive,
	}
	data, _ := json.Marshal(w)
	if err := os.WriteFile(filepath.Join(dir, "wv-abc123.json"), data, 0600); err != nil {
		t.Fatal(err)
	}

	pool := staticPool(
		model.Evaluation{EvaluatorID: "sovereign", Rating: model.Block, Confidence: 0.9, Reasoning: "red line"},
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "profitable"},
		model.Evaluation{EvaluatorID: "operator", Rating: model.Endorse, Confidence: 0.9, Reasoning: "ready"},
	)
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig(), WaiverDir: dir})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatal(err)
	}
	if out.Gate.Decision != model.GatesPassed {
		t.Fatalf("waived block should pass: %+v", out.Gate)
	}
	if len(out.Gate.WaiversApplied) != 1 || out.Gate.WaiversApplied[0].WaiverID != "wv-abc123" {
		t.Errorf("waivers applied = %+v", out.Gate.WaiversApplied)
	}
	if out.Convergence.Forced {
		t.Error("waived pass should not be forced")
	}
}

func TestRunTensionResolutionAmendsProposal(t *testing.T) {
	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Block, Confidence: 0.8, Reasoning: "cost"},
		model.Evaluation{EvaluatorID: "operator", Rating: model.Endorse, Confidence: 0.8, Reasoning: "capacity"},
	)
	protocols := []tension.Protocol{{
		ID:              "econ-ops",
		Agents:          []string{"economist", "operator"},
		MaxIterations:   3,
		ResolutionSteps: []string{"quantify the cost delta", "phase the rollout"},
	}}
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig(), Protocols: protocols})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Proposal.Amendments) != 2 {
		t.Fatalf("amendments = %v, want both resolution steps applied", out.Proposal.Amendments)
	}

	final := out.Rounds[len(out.Rounds)-1]
	if len(final.Tensions) != 1 || final.Tensions[0].Status != model.TensionResolved {
		t.Errorf("tension should resolve after final step: %+v", final.Tensions)
	}
}

func TestRunEscalatedTensionNotRetried(t *testing.T) {
	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Block, Confidence: 0.8, Reasoning: "cost"},
		model.Evaluation{EvaluatorID: "operator", Rating: model.Endorse, Confidence: 0.8, Reasoning: "capacity"},
	)
	// One iteration allowed but two steps configured: escalates after round 1.
	protocols := []tension.Protocol{{
		ID:              "econ-ops",
		Agents:          []string{"economist", "operator"},
		MaxIterations:   1,
		ResolutionSteps: []string{"step one", "step two"},
	}}
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig(), Protocols: protocols})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Proposal.Amendments) != 1 {
		t.Errorf("escalated tension must stop consuming steps: %v", out.Proposal.Amendments)
	}
	final := out.Rounds[len(out.Rounds)-1]
	if len(final.Tensions) != 1 || final.Tensions[0].Status != model.TensionEscalated {
		t.Errorf("tension should be escalated and retained: %+v", final.Tensions)
	}
}

func TestRunAuditTrailVerifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := audit.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "sound"},
	)
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig(), AuditLog: log})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Run(context.Background(), proposal()); err != nil {
		t.Fatal(err)
	}
	log.Close()

	res := audit.Verify(path)
	if !res.Valid {
		t.Fatalf("audit chain should verify: %+v", res)
	}
	if res.Lines < 3 {
		t.Errorf("expected round_start, gate_decision, converged; got %d lines", res.Lines)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "sound"},
	)
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig(), History: store})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Run(context.Background(), proposal()); err != nil {
		t.Fatal(err)
	}

	recs, err := store.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ProposalID != "p-1" || recs[0].Decision != "GATES_PASSED" {
		t.Errorf("history = %+v", recs)
	}
}

func TestRunConditionalityPatchMerged(t *testing.T) {
	reviewer := &evaluator.StaticReviewer{Result: model.ConditionalityReview{
		Verdict:     model.ZombieRisk,
		FailedTests: []string{"exogenous_trigger"},
		Critique:    "no external review trigger",
		Patch: &model.MechanismPatch{
			Trigger:   "quarterly revenue below plan",
			Action:    "mandatory strategy review",
			Authority: "board",
		},
	}}

	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "sound"},
	)
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig(), Reviewer: reviewer})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatal(err)
	}
	if out.Review == nil || !out.Review.PatchMerged {
		t.Fatalf("review = %+v, want merged patch", out.Review)
	}
	if len(out.Proposal.MechanismPatches) != 1 {
		t.Errorf("patches = %+v", out.Proposal.MechanismPatches)
	}
}

func TestRunSkipsReviewWhenGateClosed(t *testing.T) {
	reviewer := &evaluator.StaticReviewer{Result: model.ConditionalityReview{Verdict: model.StructurallyCredible}}
	pool := staticPool(
		model.Evaluation{EvaluatorID: "sovereign", Rating: model.Block, Confidence: 0.9, Reasoning: "red line"},
	)
	d, err := New(pool, Config{MaxRounds: 2, Gate: gate.DefaultConfig(), Reviewer: reviewer})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatal(err)
	}
	if out.Review != nil {
		t.Error("blocked deliberation should skip the conditionality review")
	}
}

func TestRunReviewerFailureIsNonFatal(t *testing.T) {
	reviewer := &evaluator.StaticReviewer{Err: errors.New("api down")}
	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "sound"},
	)
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig(), Reviewer: reviewer})
	if err != nil {
		t.Fatal(err)
	}

	out, err := d.Run(context.Background(), proposal())
	if err != nil {
		t.Fatalf("reviewer failure must not abort: %v", err)
	}
	if out.Review != nil {
		t.Error("failed review should be absent, not zero-valued")
	}
}

func TestRunGeneratesDeliberationID(t *testing.T) {
	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "sound"},
	)
	d, err := New(pool, Config{MaxRounds: 1, Gate: gate.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}

	p := proposal()
	p.ID = ""
	out, err := d.Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if out.DeliberationID == "" || out.Proposal.ID == "" {
		t.Error("missing proposal ID should be generated")
	}
}

func TestRunRejectsEmptyProposal(t *testing.T) {
	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "sound"},
	)
	d, err := New(pool, Config{MaxRounds: 1, Gate: gate.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Run(context.Background(), model.Proposal{}); err == nil {
		t.Error("empty proposal should error")
	}
}

func TestRunCancelledContext(t *testing.T) {
	pool := staticPool(
		model.Evaluation{EvaluatorID: "economist", Rating: model.Endorse, Confidence: 0.9, Reasoning: "sound"},
	)
	d, err := New(pool, Config{MaxRounds: 3, Gate: gate.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Run(ctx, proposal()); err == nil {
		t.Error("cancelled context should error")
	}
}

func TestNewRequiresEvaluators(t *testing.T) {
	if _, err := New(evaluator.NewPool(nil, 0), Config{}); err == nil {
		t.Error("empty pool should be rejected")
	}
}

func TestNewDefaultsTierMap(t *testing.T) {
	pool := staticPool(
		model.Evaluation{EvaluatorID: "sovereign", Rating: model.Block, Confidence: 0.9, Reasoning: "red line"},
	)
	d, err := New(pool, Config{MaxRounds: 1})
	if err != nil {
		t.Fatal(err)
	}
	if d.cfg.TierMap.For("sovereign").Tier != tier.Tier1 {
		t.Error("default tier map should assign sovereign to tier1")
	}
}
