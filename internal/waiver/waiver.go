// Package waiver implements time- and scope-bound administrative exceptions
// that permit proceeding despite a tier1 or values_escalation BLOCK.
// Waivers are created out-of-band and read fresh at every gate check.
package waiver

import (
	"time"

	"github.com/ppiankov/conclave/internal/model"
)

// Status is the lifecycle state of a waiver record.
type Status string

const (
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusSuperseded Status = "superseded"
	StatusRevoked    Status = "revoked"
)

// Scope restricts a waiver to particular markets, industries, or company
// sizes. An empty scope matches every context.
type Scope struct {
	Markets      []string `json:"markets,omitempty" yaml:"markets,omitempty"`
	Industries   []string `json:"industries,omitempty" yaml:"industries,omitempty"`
	CompanySizes []string `json:"company_sizes,omitempty" yaml:"company_sizes,omitempty"`
}

// Empty reports whether the scope places no restriction.
func (s Scope) Empty() bool {
	return len(s.Markets) == 0 && len(s.Industries) == 0 && len(s.CompanySizes) == 0
}

// Matches reports whether the scope covers the active context. A non-empty
// dimension requires the context value to be listed; a missing context value
// never satisfies a restricted dimension (strict, fail-closed).
func (s Scope) Matches(ctx model.Context) bool {
	if len(s.Markets) > 0 && !contains(s.Markets, ctx.Market) {
		return false
	}
	if len(s.Industries) > 0 && !contains(s.Industries, ctx.Industry) {
		return false
	}
	if len(s.CompanySizes) > 0 && !contains(s.CompanySizes, ctx.CompanySize) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Waiver is one durable administrative override record.
type Waiver struct {
	ID                 string     `json:"id" yaml:"id"`
	GrantedBy          string     `json:"granted_by" yaml:"granted_by"`
	GrantedAt          time.Time  `json:"granted_at" yaml:"granted_at"`
	Reason             string     `json:"reason" yaml:"reason"`
	PromisedMitigation string     `json:"promised_mitigation" yaml:"promised_mitigation"`
	ReviewDate         time.Time  `json:"review_date" yaml:"review_date"`
	ExpiryDate         *time.Time `json:"expiry_date,omitempty" yaml:"expiry_date,omitempty"`
	Scope              Scope      `json:"scope,omitempty" yaml:"scope,omitempty"`
	LinkedRedLines     []string   `json:"linked_red_lines,omitempty" yaml:"linked_red_lines,omitempty"`
	LinkedEvaluatorIDs []string   `json:"linked_evaluator_ids" yaml:"linked_evaluator_ids"`
	Status             Status     `json:"status" yaml:"status"`
}

// IsActive reports whether the waiver is usable at the given instant:
// status active and not past its expiry date. An expiry date in the past
// disqualifies the waiver even when the stored status still says active.
func (w *Waiver) IsActive(now time.Time) bool {
	if w.Status != StatusActive {
		return false
	}
	if w.ExpiryDate != nil && now.After(*w.ExpiryDate) {
		return false
	}
	return true
}

// AppliesTo implements the waiver matching rule: active, evaluator linked,
// red line linked (when one is named), and scope covering the context.
func (w *Waiver) AppliesTo(evaluatorID, redLineID string, ctx model.Context, now time.Time) bool {
	if !w.IsActive(now) {
		return false
	}
	if !linked(w.LinkedEvaluatorIDs, evaluatorID) {
		return false
	}
	if redLineID != "" && !linked(w.LinkedRedLines, redLineID) {
		return false
	}
	if !w.Scope.Empty() && !w.Scope.Matches(ctx) {
		return false
	}
	return true
}

func linked(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
