package audit

// Event names recorded in the deliberation audit trail.
const (
	EventRoundStart       = "round_start"
	EventGateDecision     = "gate_decision"
	EventWaiverApplied    = "waiver_applied"
	EventTensionDetected  = "tension_detected"
	EventTensionResolved  = "tension_resolved"
	EventTensionEscalated = "tension_escalated"
	EventForcedConverged  = "forced_converged"
	EventConverged        = "converged"
	EventCLAVerdict       = "cla_verdict"
	EventPatchMerged      = "patch_merged"
)

// Entry is one line in the hash-chained JSONL audit log.
// All fields are scalars or strings (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp      string `json:"ts"`
	DeliberationID string `json:"deliberation_id"`
	Round          int    `json:"round"`
	Event          string `json:"event"`
	Decision       string `json:"decision,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Reason         string `json:"reason,omitempty"`
	PrevHash       string `json:"prev_hash"`
}
