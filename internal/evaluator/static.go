package evaluator

import (
	"context"

	"github.com/ppiankov/conclave/internal/model"
)

// Static always returns the same evaluation, or the same error. Used in
// tests and as a human-in-loop placeholder where the rating was collected
// out of band.
type Static struct {
	id   string
	eval model.Evaluation
	err  error
}

// NewStatic creates a fixed evaluator.
func NewStatic(id string, eval model.Evaluation) *Static {
	return &Static{id: id, eval: eval}
}

// NewFailing creates an evaluator that always fails. Tests the pool's
// placeholder degradation path.
func NewFailing(id string, err error) *Static {
	return &Static{id: id, err: err}
}

// ID returns the evaluator identity.
func (s *Static) ID() string { return s.id }

// Evaluate returns the fixed evaluation or error.
func (s *Static) Evaluate(_ context.Context, _ Request) (model.Evaluation, error) {
	if s.err != nil {
		return model.Evaluation{}, s.err
	}
	return s.eval, nil
}
