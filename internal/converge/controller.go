// Package converge tracks the round counter and enforces the hard round
// cap. The cap is the sole liveness guarantee of the deliberation protocol:
// every invocation terminates in O(cap) rounds regardless of evaluator
// behavior.
package converge

import "fmt"

// DefaultCap is the default maximum number of deliberation rounds.
const DefaultCap = 3

// Outcome is the controller's per-round verdict.
type Outcome string

const (
	Continue        Outcome = "CONTINUE"
	Converged       Outcome = "CONVERGED"
	ForcedConverged Outcome = "FORCED_CONVERGED"
)

// Result is one round's controller decision.
type Result struct {
	Outcome Outcome
	Forced  bool
	Reason  string
}

// Controller is the forced-convergence state machine. The round counter
// strictly increases; once it reaches the cap the pipeline must terminate.
type Controller struct {
	cap   int
	round int
}

// NewController creates a controller with the given round cap.
// A non-positive cap falls back to DefaultCap.
func NewController(cap int) *Controller {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Controller{cap: cap}
}

// Advance increments the round counter and returns the new round number.
func (c *Controller) Advance() int {
	c.round++
	return c.round
}

// Round returns the current round number.
func (c *Controller) Round() int { return c.round }

// Cap returns the configured round cap.
func (c *Controller) Cap() int { return c.cap }

// Evaluate combines the gate's verdict with the round cap. Forced is set
// only when the cap terminated a deliberation that had not met the gate's
// own criteria.
func (c *Controller) Evaluate(gateConverged bool) Result {
	if gateConverged {
		return Result{
			Outcome: Converged,
			Reason:  fmt.Sprintf("converged in round %d", c.round),
		}
	}
	if c.round >= c.cap {
		return Result{
			Outcome: ForcedConverged,
			Forced:  true,
			Reason:  fmt.Sprintf("forced convergence: round cap %d reached at round %d without consensus", c.cap, c.round),
		}
	}
	return Result{
		Outcome: Continue,
		Reason:  fmt.Sprintf("round %d of %d: no convergence yet", c.round, c.cap),
	}
}
