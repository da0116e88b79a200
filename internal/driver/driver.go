// Package driver orchestrates a full deliberation: bounded rounds of
// concurrent evaluation, tension detection and resolution, the tiered
// convergence gate, forced termination at the round cap, and the one-shot
// conditionality review after the gate opens.
package driver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ppiankov/conclave/internal/audit"
	"github.com/ppiankov/conclave/internal/cla"
	"github.com/ppiankov/conclave/internal/converge"
	"github.com/ppiankov/conclave/internal/evaluator"
	"github.com/ppiankov/conclave/internal/gate"
	"github.com/ppiankov/conclave/internal/history"
	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/tension"
	"github.com/ppiankov/conclave/internal/tier"
	"github.com/ppiankov/conclave/internal/waiver"
)

// Config wires the deliberation pipeline together. AuditLog, History, and
// Reviewer are optional; a nil field disables that stage.
type Config struct {
	MaxRounds int
	Gate      gate.Config
	Context   model.Context
	WaiverDir string
	TierMap   *tier.Map
	Protocols []tension.Protocol
	AuditLog  *audit.Log
	History   *history.Store
	Reviewer  cla.Reviewer
}

// RoundRecord captures everything one round produced.
type RoundRecord struct {
	Round       int                     `json:"round"`
	Evaluations []model.Evaluation      `json:"evaluations"`
	Tensions    []model.Tension         `json:"tensions,omitempty"`
	Gate        model.GateStatus        `json:"gate"`
	Convergence model.ConvergenceStatus `json:"convergence"`
}

// Outcome is a finished deliberation.
type Outcome struct {
	DeliberationID string                  `json:"deliberation_id"`
	Proposal       model.Proposal          `json:"proposal"`
	Gate           model.GateStatus        `json:"gate"`
	Convergence    model.ConvergenceStatus `json:"convergence"`
	Review         *cla.Result             `json:"review,omitempty"`
	Rounds         []RoundRecord           `json:"rounds"`
}

// Driver runs deliberations over a fixed evaluator pool.
type Driver struct {
	pool *evaluator.Pool
	cfg  Config
}

// New creates a driver. The pool must hold at least one evaluator.
func New(pool *evaluator.Pool, cfg Config) (*Driver, error) {
	if pool == nil || pool.Size() == 0 {
		return nil, fmt.Errorf("driver: no evaluators configured")
	}
	if cfg.TierMap == nil {
		cfg.TierMap = tier.DefaultMap()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = converge.DefaultCap
	}
	return &Driver{pool: pool, cfg: cfg}, nil
}

// Run deliberates the proposal to termination. Always returns an outcome in
// at most MaxRounds rounds; the only error paths are a cancelled context and
// a proposal with no content.
func (d *Driver) Run(ctx context.Context, proposal model.Proposal) (*Outcome, error) {
	if proposal.Title == "" && proposal.Body == "" {
		return nil, fmt.Errorf("driver: empty proposal")
	}
	if proposal.ID == "" {
		proposal.ID = newID()
	}

	controller := converge.NewController(d.cfg.MaxRounds)
	resolver := tension.NewResolver(d.cfg.Protocols)

	// Tensions persist across rounds; a protocol that already has a live or
	// escalated tension is not re-detected.
	tensions := make(map[string]*model.Tension)

	out := &Outcome{DeliberationID: proposal.ID}
	var convHistory []model.ConvergenceStatus

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("driver: deliberation cancelled: %w", err)
		}

		round := controller.Advance()
		d.record(audit.Entry{
			DeliberationID: proposal.ID,
			Round:          round,
			Event:          audit.EventRoundStart,
		})

		evals := d.pool.EvaluateAll(ctx, evaluator.Request{
			Proposal: proposal,
			Context:  d.cfg.Context,
			History:  convHistory,
			Round:    round,
		})

		for _, t := range tension.Detect(evals, d.cfg.Protocols) {
			if _, seen := tensions[t.ProtocolID]; seen {
				continue
			}
			nt := t
			tensions[t.ProtocolID] = &nt
			d.record(audit.Entry{
				DeliberationID: proposal.ID,
				Round:          round,
				Event:          audit.EventTensionDetected,
				Subject:        t.ProtocolID,
				Reason:         t.Description,
			})
		}

		for _, t := range activeTensions(tensions) {
			switch resolver.Resolve(t, &proposal) {
			case tension.OutcomeResolved:
				d.record(audit.Entry{
					DeliberationID: proposal.ID,
					Round:          round,
					Event:          audit.EventTensionResolved,
					Subject:        t.ProtocolID,
					Reason:         t.Resolution,
				})
			case tension.OutcomeEscalated:
				d.record(audit.Entry{
					DeliberationID: proposal.ID,
					Round:          round,
					Event:          audit.EventTensionEscalated,
					Subject:        t.ProtocolID,
					Reason:         t.Resolution,
				})
			}
		}

		// Waivers are read fresh every round so revocations and expiry take
		// effect mid-deliberation. A register we cannot load applies no
		// waivers: the gate only gets stricter.
		var reg *waiver.Register
		if d.cfg.WaiverDir != "" {
			var err error
			reg, err = waiver.LoadRegister(d.cfg.WaiverDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "driver: waiver register unavailable, gating without waivers: %v\n", err)
				reg = nil
			}
		}

		gs := gate.Evaluate(evals, d.cfg.TierMap, reg, d.cfg.Context)
		d.record(audit.Entry{
			DeliberationID: proposal.ID,
			Round:          round,
			Event:          audit.EventGateDecision,
			Decision:       string(gs.Decision),
			Reason:         gs.Message,
		})
		for _, w := range gs.WaiversApplied {
			d.record(audit.Entry{
				DeliberationID: proposal.ID,
				Round:          round,
				Event:          audit.EventWaiverApplied,
				Subject:        w.EvaluatorID,
				Reason:         w.WaiverID,
			})
		}

		cons := gate.CheckConsensus(evals, d.cfg.Gate)
		res := controller.Evaluate(gs.CanProceed && cons.Met)

		cs := model.ConvergenceStatus{
			Converged:     res.Outcome != converge.Continue,
			Reason:        res.Reason,
			RoundCount:    round,
			AvgConfidence: cons.AvgConfidence,
			PositivePct:   cons.PositivePct,
			Forced:        res.Forced,
			Gate:          &gs,
		}
		if !gs.CanProceed {
			cs.Reason = fmt.Sprintf("%s (%s)", res.Reason, gs.Message)
		} else if !cons.Met {
			cs.Reason = fmt.Sprintf("%s (%s)", res.Reason, cons.Reason)
		}

		convHistory = append(convHistory, cs)
		out.Rounds = append(out.Rounds, RoundRecord{
			Round:       round,
			Evaluations: evals,
			Tensions:    snapshotTensions(tensions),
			Gate:        gs,
			Convergence: cs,
		})
		out.Gate = gs
		out.Convergence = cs

		if res.Outcome == converge.Continue {
			continue
		}

		event := audit.EventConverged
		if res.Forced {
			event = audit.EventForcedConverged
		}
		d.record(audit.Entry{
			DeliberationID: proposal.ID,
			Round:          round,
			Event:          event,
			Decision:       string(gs.Decision),
			Reason:         res.Reason,
		})
		break
	}

	d.review(ctx, out, &proposal)
	out.Proposal = proposal

	d.finalize(out)
	return out, nil
}

// review runs the one-shot conditionality check. It runs only when the main
// gate opened: a blocked deliberation has nothing to stress-test. A reviewer
// failure is logged and skipped; the review is advisory infrastructure, not
// a liveness dependency.
func (d *Driver) review(ctx context.Context, out *Outcome, proposal *model.Proposal) {
	if d.cfg.Reviewer == nil || !out.Gate.CanProceed {
		return
	}

	lastRound := out.Rounds[len(out.Rounds)-1]
	review, err := d.cfg.Reviewer.Review(ctx, *proposal, lastRound.Evaluations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "driver: conditionality review failed, proceeding without it: %v\n", err)
		return
	}

	res := cla.Apply(review, proposal)
	out.Review = &res

	d.record(audit.Entry{
		DeliberationID: out.DeliberationID,
		Round:          out.Convergence.RoundCount,
		Event:          audit.EventCLAVerdict,
		Decision:       string(review.Verdict),
		Reason:         review.Critique,
	})
	if res.PatchMerged {
		d.record(audit.Entry{
			DeliberationID: out.DeliberationID,
			Round:          out.Convergence.RoundCount,
			Event:          audit.EventPatchMerged,
			Subject:        review.Patch.Authority,
			Reason:         review.Patch.Trigger,
		})
	}
}

func (d *Driver) finalize(out *Outcome) {
	if d.cfg.History == nil {
		return
	}
	rec := history.Record{
		ProposalID:    out.Proposal.ID,
		ProposalTitle: out.Proposal.Title,
		Decision:      string(out.Gate.Decision),
		Converged:     out.Convergence.Converged,
		Forced:        out.Convergence.Forced,
		Rounds:        out.Convergence.RoundCount,
		AvgConfidence: out.Convergence.AvgConfidence,
		FinalizedAt:   time.Now().UTC(),
	}
	if out.Review != nil {
		rec.CLAVerdict = string(out.Review.Review.Verdict)
	}
	if err := d.cfg.History.Record(rec); err != nil {
		fmt.Fprintf(os.Stderr, "driver: history write failed: %v\n", err)
	}
}

// record appends an audit entry, warning on failure. An unwritable audit
// log degrades the trail, not the deliberation.
func (d *Driver) record(e audit.Entry) {
	if d.cfg.AuditLog == nil {
		return
	}
	if err := d.cfg.AuditLog.Record(e); err != nil {
		fmt.Fprintf(os.Stderr, "driver: audit write failed: %v\n", err)
	}
}

// activeTensions returns the still-active tensions sorted by protocol ID so
// resolution order (and thus amendment order) is deterministic.
func activeTensions(m map[string]*model.Tension) []*model.Tension {
	var out []*model.Tension
	for _, t := range m {
		if t.Status == model.TensionActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProtocolID < out[j].ProtocolID })
	return out
}

func snapshotTensions(m map[string]*model.Tension) []model.Tension {
	var out []model.Tension
	for _, t := range m {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProtocolID < out[j].ProtocolID })
	return out
}

func newID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("dl-%d", time.Now().UnixNano())
	}
	return "dl-" + hex.EncodeToString(b)
}
