package tension

import (
	"fmt"

	"github.com/ppiankov/conclave/internal/model"
)

// Detect returns one active Tension per protocol whose trigger condition
// holds for the current evaluation set. Purely derived; no side effects.
// A protocol whose agents did not both evaluate this round does not trigger:
// absence of a rating is not a conflict.
func Detect(evals []model.Evaluation, protocols []Protocol) []model.Tension {
	byID := make(map[string]model.Rating, len(evals))
	for _, e := range evals {
		byID[e.EvaluatorID] = e.Rating
	}

	var out []model.Tension
	for _, p := range protocols {
		a, okA := byID[p.Agents[0]]
		b, okB := byID[p.Agents[1]]
		if !okA || !okB {
			continue
		}
		if !triggered(p.Trigger, a, b) {
			continue
		}
		out = append(out, model.Tension{
			ProtocolID: p.ID,
			EvaluatorA: p.Agents[0],
			EvaluatorB: p.Agents[1],
			Description: fmt.Sprintf("%s rates %s while %s rates %s",
				p.Agents[0], a, p.Agents[1], b),
			Status: model.TensionActive,
		})
	}
	return out
}

// triggered checks the configured rating pair, or opposing polarity for a
// zero trigger (one side BLOCK, the other ENDORSE, either direction).
func triggered(t Trigger, a, b model.Rating) bool {
	if t.zero() {
		return (a == model.Block && b == model.Endorse) ||
			(a == model.Endorse && b == model.Block)
	}
	return a == model.Rating(t.RatingA) && b == model.Rating(t.RatingB)
}
