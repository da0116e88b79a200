package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/conclave/internal/gate"
	"github.com/ppiankov/conclave/internal/model"
	"github.com/ppiankov/conclave/internal/waiver"
)

// --- Input/Output types ---

// EvaluationInput is one evaluator's rating in a gate check request.
type EvaluationInput struct {
	Evaluator  string  `json:"evaluator" jsonschema:"evaluator identity (tier and waiver matching key)"`
	Rating     string  `json:"rating" jsonschema:"BLOCK, WARN, ACCEPT, or ENDORSE"`
	Confidence float64 `json:"confidence,omitempty" jsonschema:"confidence in [0,1], defaults to 0.8"`
	Reasoning  string  `json:"reasoning,omitempty" jsonschema:"short rationale"`
}

// ContextInput optionally overrides the configured deliberation context.
type ContextInput struct {
	Market      string `json:"market,omitempty" jsonschema:"active market"`
	Industry    string `json:"industry,omitempty" jsonschema:"active industry"`
	CompanySize string `json:"company_size,omitempty" jsonschema:"active company size"`
}

// GateCheckInput defines parameters for the conclave_gate_check tool.
type GateCheckInput struct {
	Evaluations []EvaluationInput `json:"evaluations" jsonschema:"the evaluation set to gate"`
	Context     *ContextInput     `json:"context,omitempty" jsonschema:"context override for waiver scope matching"`
}

// GateCheckOutput contains the gate decision.
type GateCheckOutput struct {
	CanProceed     bool                  `json:"can_proceed"`
	Decision       string                `json:"decision"`
	Message        string                `json:"message"`
	Tier1Blocks    []string              `json:"tier1_blocks,omitempty"`
	Tier2Blocks    []string              `json:"tier2_blocks,omitempty"`
	Tier3Blocks    []string              `json:"tier3_blocks,omitempty"`
	ValuesBlocks   []string              `json:"values_blocks,omitempty"`
	WaiversApplied []model.AppliedWaiver `json:"waivers_applied,omitempty"`
}

// DeliberateInput defines parameters for the conclave_deliberate tool.
type DeliberateInput struct {
	Title   string        `json:"title" jsonschema:"proposal title"`
	Body    string        `json:"body" jsonschema:"proposal body"`
	Context *ContextInput `json:"context,omitempty" jsonschema:"context override for this deliberation"`
}

// DeliberateOutput summarizes a finished deliberation.
type DeliberateOutput struct {
	DeliberationID string   `json:"deliberation_id"`
	Decision       string   `json:"decision"`
	CanProceed     bool     `json:"can_proceed"`
	Converged      bool     `json:"converged"`
	Forced         bool     `json:"forced"`
	Rounds         int      `json:"rounds"`
	Reason         string   `json:"reason"`
	Amendments     []string `json:"amendments,omitempty"`
	CLAVerdict     string   `json:"cla_verdict,omitempty"`
	CLACritique    string   `json:"cla_critique,omitempty"`
	PatchMerged    bool     `json:"patch_merged,omitempty"`
}

// WaiverListInput defines parameters for the conclave_waiver_list tool.
type WaiverListInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by status: active, expired, superseded, or revoked"`
}

// WaiverListOutput lists waiver records.
type WaiverListOutput struct {
	Waivers []WaiverItem `json:"waivers"`
}

// WaiverItem describes a single waiver record.
type WaiverItem struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	GrantedBy          string   `json:"granted_by"`
	Reason             string   `json:"reason"`
	LinkedEvaluatorIDs []string `json:"linked_evaluator_ids"`
	ReviewDate         string   `json:"review_date,omitempty"`
	ExpiryDate         string   `json:"expiry_date,omitempty"`
}

// --- Handlers ---

func (s *Server) handleGateCheck(_ context.Context, _ *mcpsdk.CallToolRequest, input GateCheckInput) (*mcpsdk.CallToolResult, GateCheckOutput, error) {
	if len(input.Evaluations) == 0 {
		return nil, GateCheckOutput{}, fmt.Errorf("at least one evaluation is required")
	}

	evals := make([]model.Evaluation, 0, len(input.Evaluations))
	for _, in := range input.Evaluations {
		r, err := model.ParseRating(in.Rating)
		if err != nil {
			return nil, GateCheckOutput{}, fmt.Errorf("evaluator %q: %w", in.Evaluator, err)
		}
		conf := in.Confidence
		if conf == 0 {
			conf = 0.8
		}
		evals = append(evals, model.Evaluation{
			EvaluatorID: in.Evaluator,
			Rating:      r,
			Confidence:  conf,
			Reasoning:   in.Reasoning,
		})
	}

	ctx := s.engine.Context
	if input.Context != nil {
		ctx = contextFrom(input.Context)
	}

	reg, err := waiver.LoadRegister(s.waiverDir)
	if err != nil {
		// Gate without waivers rather than fail: the check only gets stricter.
		reg = nil
	}

	s.mu.Lock()
	status := gate.Evaluate(evals, s.tiers, reg, ctx)
	s.mu.Unlock()

	out := GateCheckOutput{
		CanProceed:     status.CanProceed,
		Decision:       string(status.Decision),
		Message:        status.Message,
		Tier1Blocks:    status.Tier1Blocks,
		Tier2Blocks:    status.Tier2Blocks,
		Tier3Blocks:    status.Tier3Blocks,
		ValuesBlocks:   status.ValuesBlocks,
		WaiversApplied: status.WaiversApplied,
	}
	if !status.CanProceed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleDeliberate(ctx context.Context, _ *mcpsdk.CallToolRequest, input DeliberateInput) (*mcpsdk.CallToolResult, DeliberateOutput, error) {
	if input.Title == "" && input.Body == "" {
		return nil, DeliberateOutput{}, fmt.Errorf("proposal title or body is required")
	}

	var override *model.Context
	if input.Context != nil {
		c := contextFrom(input.Context)
		override = &c
	}

	s.mu.Lock()
	d, err := s.newDriver(override)
	s.mu.Unlock()
	if err != nil {
		return nil, DeliberateOutput{}, fmt.Errorf("assemble pipeline: %w", err)
	}

	outcome, err := d.Run(ctx, model.Proposal{Title: input.Title, Body: input.Body})
	if err != nil {
		return nil, DeliberateOutput{}, err
	}

	out := DeliberateOutput{
		DeliberationID: outcome.DeliberationID,
		Decision:       string(outcome.Gate.Decision),
		CanProceed:     outcome.Gate.CanProceed,
		Converged:      outcome.Convergence.Converged,
		Forced:         outcome.Convergence.Forced,
		Rounds:         outcome.Convergence.RoundCount,
		Reason:         outcome.Convergence.Reason,
		Amendments:     outcome.Proposal.Amendments,
	}
	if outcome.Review != nil {
		out.CLAVerdict = string(outcome.Review.Review.Verdict)
		out.CLACritique = outcome.Review.Review.Critique
		out.PatchMerged = outcome.Review.PatchMerged
	}
	if !outcome.Gate.CanProceed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleWaiverList(_ context.Context, _ *mcpsdk.CallToolRequest, input WaiverListInput) (*mcpsdk.CallToolResult, WaiverListOutput, error) {
	store, err := waiver.NewStore(s.waiverDir)
	if err != nil {
		return nil, WaiverListOutput{}, err
	}
	list, err := store.List()
	if err != nil {
		return nil, WaiverListOutput{}, err
	}

	out := WaiverListOutput{Waivers: []WaiverItem{}}
	for _, w := range list {
		if input.Status != "" && string(w.Status) != input.Status {
			continue
		}
		item := WaiverItem{
			ID:                 w.ID,
			Status:             string(w.Status),
			GrantedBy:          w.GrantedBy,
			Reason:             w.Reason,
			LinkedEvaluatorIDs: w.LinkedEvaluatorIDs,
		}
		if !w.ReviewDate.IsZero() {
			item.ReviewDate = w.ReviewDate.Format(time.RFC3339)
		}
		if w.ExpiryDate != nil {
			item.ExpiryDate = w.ExpiryDate.Format(time.RFC3339)
		}
		out.Waivers = append(out.Waivers, item)
	}

	return nil, out, nil
}

func contextFrom(in *ContextInput) model.Context {
	return model.Context{
		Market:      in.Market,
		Industry:    in.Industry,
		CompanySize: in.CompanySize,
	}
}
