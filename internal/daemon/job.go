// Package daemon implements the inbox/outbox deliberation service. Proposal
// jobs arrive as JSON files in the inbox directory, are deliberated, and the
// full outcome is written to the outbox directory.
package daemon

import (
	"fmt"
	"regexp"
	"time"

	"github.com/ppiankov/conclave/internal/driver"
	"github.com/ppiankov/conclave/internal/model"
)

// validID matches alphanumeric characters, dashes, and underscores only.
var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Job is a deliberation request dropped into the inbox.
type Job struct {
	ID        string         `json:"id"`
	Proposal  model.Proposal `json:"proposal"`
	Context   *model.Context `json:"context,omitempty"`
	Source    string         `json:"source,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Result is written to the outbox after a deliberation finishes.
type Result struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Outcome     *driver.Outcome `json:"outcome,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Result status values.
const (
	ResultDone   = "done"
	ResultFailed = "failed"
)

// ValidateJob checks that a job has all required fields and safe values.
// The job ID becomes a filename, so path characters are rejected outright.
func ValidateJob(j *Job) error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if !validID.MatchString(j.ID) {
		return fmt.Errorf("job ID contains invalid characters: only alphanumeric, dash, and underscore allowed")
	}
	if j.Proposal.Title == "" && j.Proposal.Body == "" {
		return fmt.Errorf("job proposal is empty")
	}
	return nil
}
