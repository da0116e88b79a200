package tension

import (
	"fmt"

	"github.com/ppiankov/conclave/internal/model"
)

// Outcome is the result of exactly one resolver pass over one tension.
type Outcome string

const (
	OutcomeResolved    Outcome = "resolved"
	OutcomeEscalated   Outcome = "escalated"
	OutcomeStillActive Outcome = "still-active"
)

// Resolver applies protocol resolution steps to active tensions, one step
// per invocation. Attempt counts persist across rounds so a protocol's
// iteration budget bounds total work, not per-round work.
type Resolver struct {
	protocols map[string]Protocol
	attempts  map[string]int
}

// NewResolver builds a resolver over the configured protocols.
func NewResolver(protocols []Protocol) *Resolver {
	byID := make(map[string]Protocol, len(protocols))
	for _, p := range protocols {
		byID[p.ID] = p
	}
	return &Resolver{protocols: byID, attempts: make(map[string]int)}
}

// Resolve performs one bounded resolution pass on the tension, possibly
// amending the proposal. The tension transitions to exactly one of
// resolved, escalated, or still-active; it is never dropped.
//
// Each pass applies the next configured resolution step as a proposal
// amendment. Applying the final step resolves the tension. Exhausting
// max_iterations with steps remaining escalates it; escalated tensions are
// retained for audit but no longer retried.
func (r *Resolver) Resolve(t *model.Tension, proposal *model.Proposal) Outcome {
	if t.Status != model.TensionActive {
		return Outcome(t.Status)
	}

	p, ok := r.protocols[t.ProtocolID]
	if !ok || len(p.ResolutionSteps) == 0 {
		// No resolution path configured: surface immediately.
		t.Status = model.TensionEscalated
		t.Resolution = "no resolution steps configured"
		return OutcomeEscalated
	}

	step := r.attempts[t.ProtocolID]
	if step >= p.MaxIterations {
		t.Status = model.TensionEscalated
		t.Resolution = fmt.Sprintf("iteration budget exhausted after %d attempts", step)
		return OutcomeEscalated
	}

	proposal.Amend(fmt.Sprintf("[%s] %s", t.ProtocolID, p.ResolutionSteps[step]))
	r.attempts[t.ProtocolID] = step + 1

	if step+1 >= len(p.ResolutionSteps) {
		t.Status = model.TensionResolved
		t.Resolution = fmt.Sprintf("applied %d resolution steps", step+1)
		return OutcomeResolved
	}

	if r.attempts[t.ProtocolID] >= p.MaxIterations {
		t.Status = model.TensionEscalated
		t.Resolution = fmt.Sprintf("iteration budget exhausted after %d attempts", r.attempts[t.ProtocolID])
		return OutcomeEscalated
	}

	return OutcomeStillActive
}

// Attempts reports how many resolution attempts a protocol has consumed.
func (r *Resolver) Attempts(protocolID string) int {
	return r.attempts[protocolID]
}
