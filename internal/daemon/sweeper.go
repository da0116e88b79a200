package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// defaultTTL is how long completed results stay in the outbox before the
// sweeper archives them.
const defaultTTL = 7 * 24 * time.Hour

// Sweeper archives aged outbox results into state/archived so the outbox
// holds only recent outcomes. Consumers that poll the outbox never see a
// result disappear before the TTL elapses.
type Sweeper struct {
	outbox   string
	archived string
	ttl      time.Duration
}

// NewSweeper creates a retention sweeper. A non-positive TTL falls back to
// the default.
func NewSweeper(dirs DirConfig, ttl time.Duration) *Sweeper {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Sweeper{
		outbox:   dirs.Outbox,
		archived: dirs.ArchivedDir(),
		ttl:      ttl,
	}
}

// Sweep moves results older than the TTL to the archive. Returns how many
// files were archived.
func (s *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(s.outbox)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read outbox: %w", err)
	}

	cutoff := time.Now().Add(-s.ttl)
	archived := 0
	for _, e := range entries {
		if e.IsDir() || !isJobFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		src := filepath.Join(s.outbox, e.Name())
		dst := filepath.Join(s.archived, e.Name())
		if err := moveFile(src, dst); err != nil {
			fmt.Fprintf(os.Stderr, "daemon: archive %s: %v\n", e.Name(), err)
			continue
		}
		archived++
	}
	return archived, nil
}
