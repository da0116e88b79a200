// Package evaluator defines the evaluator capability and the concurrent
// pool that dispatches a round's evaluations. The engine is agnostic to how
// an evaluation is computed: LLM-backed, rule-based, and fixed evaluators
// all satisfy the same one-method contract.
package evaluator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/conclave/internal/model"
)

// Request carries everything an evaluator may consider for one round.
type Request struct {
	Proposal model.Proposal
	Context  model.Context
	History  []model.ConvergenceStatus
	Round    int
}

// Evaluator produces one evaluation per round.
type Evaluator interface {
	ID() string
	Evaluate(ctx context.Context, req Request) (model.Evaluation, error)
}

// defaultTimeout bounds a single evaluator call.
const defaultTimeout = 90 * time.Second

// maxConcurrent limits simultaneous evaluator calls per round.
const maxConcurrent = 5

// Pool dispatches all evaluators for a round. Evaluator calls are the one
// point of parallelism in the protocol: independent, possibly blocking on
// external I/O, sharing nothing but the read-only request.
type Pool struct {
	evaluators []Evaluator
	timeout    time.Duration
}

// NewPool creates a pool. A non-positive timeout falls back to the default.
func NewPool(evaluators []Evaluator, timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Pool{evaluators: evaluators, timeout: timeout}
}

// Size returns the number of evaluators in the pool.
func (p *Pool) Size() int { return len(p.evaluators) }

// EvaluateAll runs every evaluator concurrently (bounded) and returns one
// evaluation per evaluator, sorted by evaluator ID. A failing, slow, or
// malformed evaluator degrades to a WARN placeholder with confidence 0 and
// never blocks or aborts the round for the others.
func (p *Pool) EvaluateAll(ctx context.Context, req Request) []model.Evaluation {
	results := make([]model.Evaluation, len(p.evaluators))
	sem := make(chan struct{}, maxConcurrent)

	var wg sync.WaitGroup
	for i, ev := range p.evaluators {
		wg.Add(1)
		go func(i int, ev Evaluator) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			e, err := ev.Evaluate(callCtx, req)
			if err == nil {
				err = e.Validate()
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "evaluator: %s degraded to placeholder: %v\n", ev.ID(), err)
				results[i] = Placeholder(ev.ID(), err)
				return
			}
			// The evaluation speaks for the evaluator it came from.
			e.EvaluatorID = ev.ID()
			results[i] = e
		}(i, ev)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].EvaluatorID < results[j].EvaluatorID
	})
	return results
}

// Placeholder is the degraded evaluation substituted for a failed evaluator.
func Placeholder(evaluatorID string, err error) model.Evaluation {
	return model.Evaluation{
		EvaluatorID: evaluatorID,
		Rating:      model.Warn,
		Confidence:  0,
		Reasoning:   fmt.Sprintf("evaluator failed: %v", err),
	}
}
