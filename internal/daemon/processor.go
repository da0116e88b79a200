package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/conclave/internal/driver"
	"github.com/ppiankov/conclave/internal/model"
)

// RunFunc deliberates one proposal to completion. The daemon is agnostic to
// how the pipeline is assembled; the CLI wires in driver.Run.
type RunFunc func(ctx context.Context, proposal model.Proposal) (*driver.Outcome, error)

// Processor handles job lifecycle transitions.
type Processor struct {
	dirs DirConfig
	run  RunFunc
}

// NewProcessor creates a processor over the given directory layout.
func NewProcessor(dirs DirConfig, run RunFunc) *Processor {
	return &Processor{dirs: dirs, run: run}
}

// Process handles a single job file through its full lifecycle:
// read → validate → move to processing → deliberate → write result to outbox.
func (p *Processor) Process(ctx context.Context, jobPath string) error {
	// Structural symlink defense: reject symlinks before reading, so an
	// inbox symlink cannot point the daemon at arbitrary filesystem paths.
	fi, err := os.Lstat(jobPath)
	if err != nil {
		return fmt.Errorf("stat job file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("rejected symlink: %s", filepath.Base(jobPath))
	}

	data, err := os.ReadFile(jobPath)
	if err != nil {
		return fmt.Errorf("read job file: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		_ = os.Remove(jobPath)
		return p.writeFailedResult(stripExt(filepath.Base(jobPath)), fmt.Sprintf("invalid JSON: %v", err))
	}

	if err := ValidateJob(&job); err != nil {
		_ = os.Remove(jobPath)
		return p.writeFailedResult(job.ID, fmt.Sprintf("validation failed: %v", err))
	}

	// Move to processing state. Uses moveFile to handle systemd bind
	// mounts (EXDEV).
	processingPath := filepath.Join(p.dirs.ProcessingDir(), job.ID+".json")
	if err := moveFile(jobPath, processingPath); err != nil {
		return fmt.Errorf("move to processing: %w", err)
	}

	proposal := job.Proposal
	if proposal.ID == "" {
		proposal.ID = job.ID
	}

	result := &Result{ID: job.ID}
	outcome, err := p.run(ctx, proposal)
	if err != nil {
		result.Status = ResultFailed
		result.Error = err.Error()
	} else {
		result.Status = ResultDone
		result.Outcome = outcome
	}
	result.CompletedAt = time.Now().UTC()

	if err := p.writeResult(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	_ = os.Remove(processingPath)
	return nil
}

// writeResult writes a result to the outbox directory atomically.
func (p *Processor) writeResult(r *Result) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	filename := r.ID + ".json"
	tmpPath := filepath.Join(p.dirs.Outbox, filename+".tmp")
	finalPath := filepath.Join(p.dirs.Outbox, filename)

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	return os.Rename(tmpPath, finalPath)
}

// writeFailedResult writes a minimal failed result when the job can't be
// parsed or validated.
func (p *Processor) writeFailedResult(id string, errMsg string) error {
	if id == "" || !validID.MatchString(id) {
		id = fmt.Sprintf("unknown-%d", time.Now().UnixNano())
	}
	r := &Result{
		ID:          id,
		Status:      ResultFailed,
		Error:       errMsg,
		CompletedAt: time.Now().UTC(),
	}
	return p.writeResult(r)
}

func stripExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
