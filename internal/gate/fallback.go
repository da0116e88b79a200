package gate

import (
	"fmt"

	"github.com/ppiankov/conclave/internal/model"
)

// FallbackMajority is the documented degraded gate used when the tiered
// check itself fails. It is a plain majority rule: proceed when positive
// ratings strictly outnumber blocks. It deliberately does NOT consult
// waivers — waiver matching belongs to the tiered path that just failed,
// and a half-applied waiver view could only loosen the decision.
func FallbackMajority(evals []model.Evaluation) model.GateStatus {
	var positives, blocks int
	for _, e := range evals {
		if e.Rating.Positive() {
			positives++
		}
		if e.Rating == model.Block {
			blocks++
		}
	}

	if positives > blocks {
		return model.GateStatus{
			CanProceed: true,
			Decision:   model.FallbackMajorityPass,
			Message:    fmt.Sprintf("fallback majority: %d positive vs %d block (waivers not consulted)", positives, blocks),
		}
	}
	return model.GateStatus{
		CanProceed: false,
		Decision:   model.FallbackMajorityFail,
		Message:    fmt.Sprintf("fallback majority: %d positive vs %d block (waivers not consulted)", positives, blocks),
	}
}
