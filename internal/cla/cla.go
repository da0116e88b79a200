// Package cla implements the conditionality gate: a single structural
// robustness review run once after the main convergence gate opens. A
// non-credible verdict re-closes the pipeline pending a mechanism patch;
// merging the patch re-opens it unconditionally.
package cla

import (
	"context"
	"fmt"
	"os"

	"github.com/ppiankov/conclave/internal/model"
)

// Reviewer produces the conditionality review. The four structural tests
// (reversibility, exogenous trigger, cost allocation, enforcement leverage)
// are judged by the reviewer, not by this package.
type Reviewer interface {
	Review(ctx context.Context, proposal model.Proposal, evals []model.Evaluation) (model.ConditionalityReview, error)
}

// GateState is the conditionality gate's position.
type GateState string

const (
	Open   GateState = "OPEN"
	Closed GateState = "CLOSED"
)

// Result is the terminal state of the conditionality gate for one
// deliberation.
type Result struct {
	Review      model.ConditionalityReview
	State       GateState
	PatchMerged bool
	Warning     string
}

// Apply runs the conditionality state machine over a finished review.
//
//	STRUCTURALLY_CREDIBLE          → OPEN
//	other verdict, patch supplied  → CLOSED → merge patch → OPEN
//	other verdict, no patch        → OPEN (fail-open), data-quality warning
//
// Patch integration cannot be refused; it can only be applied.
func Apply(review model.ConditionalityReview, proposal *model.Proposal) Result {
	res := Result{Review: review, State: Open}

	if review.Verdict == model.StructurallyCredible {
		return res
	}

	res.State = Closed
	if review.Patch != nil {
		proposal.MergePatch(*review.Patch)
		res.PatchMerged = true
		res.State = Open
		return res
	}

	// No mechanism patch despite a closed gate: open anyway, but downstream
	// provenance depends on the patch, so flag the absence.
	res.State = Open
	res.Warning = fmt.Sprintf("conditionality verdict %s supplied no mechanism patch; proceeding without one", review.Verdict)
	fmt.Fprintf(os.Stderr, "cla: %s\n", res.Warning)
	return res
}
