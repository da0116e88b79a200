package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// Config holds full daemon configuration.
type Config struct {
	Dirs         DirConfig
	Run          RunFunc
	PollMode     bool
	PollInterval time.Duration
	ResultTTL    time.Duration
}

// Daemon watches the inbox directory and deliberates incoming proposals.
type Daemon struct {
	cfg       Config
	processor *Processor
}

// New creates a daemon with validated configuration.
func New(cfg Config) (*Daemon, error) {
	if cfg.Dirs.Inbox == "" || cfg.Dirs.Outbox == "" || cfg.Dirs.State == "" {
		return nil, fmt.Errorf("inbox, outbox, and state directories are required")
	}
	if cfg.Run == nil {
		return nil, fmt.Errorf("deliberation run function is required")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = pollDefault
	}

	return &Daemon{
		cfg:       cfg,
		processor: NewProcessor(cfg.Dirs, cfg.Run),
	}, nil
}

// Run starts the daemon. Blocks until ctx is cancelled. On startup it
// recovers orphaned processing files and deliberates any jobs that arrived
// while the daemon was down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := EnsureDirs(d.cfg.Dirs); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	// PID file lock prevents duplicate instances.
	pidPath := filepath.Join(d.cfg.Dirs.State, "daemon.pid")
	if err := acquirePIDLock(pidPath); err != nil {
		return fmt.Errorf("acquire PID lock: %w", err)
	}
	defer func() { _ = os.Remove(pidPath) }()

	if err := d.recoverOrphans(); err != nil {
		return fmt.Errorf("recover orphans: %w", err)
	}

	handler := func(path string) {
		if err := d.processor.Process(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "daemon: process %s: %v\n", filepath.Base(path), err)
		}
	}

	if err := ScanExisting(d.cfg.Dirs.Inbox, handler); err != nil {
		return fmt.Errorf("scan existing: %w", err)
	}

	go d.runRetentionSweeper(ctx, NewSweeper(d.cfg.Dirs, d.cfg.ResultTTL))

	if d.cfg.PollMode {
		pw := NewPollWatcher(d.cfg.Dirs.Inbox, handler, d.cfg.PollInterval)
		return pw.Run(ctx)
	}

	w := NewInboxWatcher(d.cfg.Dirs.Inbox, handler)
	return w.Run(ctx)
}

// sweepInterval is how often the retention sweeper runs.
const sweepInterval = 1 * time.Hour

// runRetentionSweeper periodically archives aged outbox results.
func (d *Daemon) runRetentionSweeper(ctx context.Context, sweeper *Sweeper) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.Sweep()
			if err != nil {
				fmt.Fprintf(os.Stderr, "daemon: retention sweep: %v\n", err)
			} else if n > 0 {
				fmt.Fprintf(os.Stderr, "daemon: archived %d aged results\n", n)
			}
		}
	}
}

// recoverOrphans turns files left in state/processing/ into failed results.
// These are jobs that were mid-deliberation when the daemon stopped.
func (d *Daemon) recoverOrphans() error {
	procDir := d.cfg.Dirs.ProcessingDir()
	entries, err := os.ReadDir(procDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !isJobFile(e.Name()) {
			continue
		}
		id := stripExt(e.Name())
		result := &Result{
			ID:          id,
			Status:      ResultFailed,
			Error:       "interrupted: job was deliberating when daemon stopped",
			CompletedAt: time.Now().UTC(),
		}
		if err := d.processor.writeResult(result); err != nil {
			fmt.Fprintf(os.Stderr, "daemon: recover orphan %s: %v\n", id, err)
		}
		_ = os.Remove(filepath.Join(procDir, e.Name()))
	}
	return nil
}

// acquirePIDLock writes the current PID to the file and checks for stale locks.
func acquirePIDLock(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, err := strconv.Atoi(string(data))
		if err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("another daemon is running (PID %d)", pid)
				}
			}
		}
		// Stale PID file.
		_ = os.Remove(path)
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600)
}
