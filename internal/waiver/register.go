package waiver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/conclave/internal/model"
)

// Register is the read-only waiver view consulted at gate-check time.
// It holds only waivers that were active and unexpired at load time; the
// driver reloads it every round so expiry is honored without caching.
type Register struct {
	waivers []Waiver
	now     time.Time
}

// NewRegister builds a register from in-memory records, filtering to those
// active at the given instant. Used by tests and the scenario runner.
func NewRegister(waivers []Waiver, now time.Time) *Register {
	r := &Register{now: now}
	for _, w := range waivers {
		if w.IsActive(now) {
			r.waivers = append(r.waivers, w)
		}
	}
	return r
}

// LoadRegister reads all waiver files from a store directory. A file that
// fails to parse is skipped with a warning: a waiver we cannot read is a
// waiver that does not apply (fail-closed, the gate only gets stricter).
func LoadRegister(dir string) (*Register, error) {
	now := time.Now().UTC()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Register{now: now}, nil
		}
		return nil, fmt.Errorf("read waiver directory: %w", err)
	}

	r := &Register{now: now}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "waiver: skipping unreadable %s: %v\n", e.Name(), err)
			continue
		}
		var w Waiver
		if err := json.Unmarshal(data, &w); err != nil {
			fmt.Fprintf(os.Stderr, "waiver: skipping malformed %s: %v\n", e.Name(), err)
			continue
		}
		if w.IsActive(now) {
			r.waivers = append(r.waivers, w)
		}
	}

	return r, nil
}

// AppliesTo returns the first waiver matching the evaluator, red line, and
// context, or nil when none matches. Waivers are checked in directory order,
// which is stable, so matching is deterministic.
func (r *Register) AppliesTo(evaluatorID, redLineID string, ctx model.Context) *Waiver {
	if r == nil {
		return nil
	}
	for i := range r.waivers {
		if r.waivers[i].AppliesTo(evaluatorID, redLineID, ctx, r.now) {
			return &r.waivers[i]
		}
	}
	return nil
}

// Len returns the number of usable waivers in the register.
func (r *Register) Len() int {
	if r == nil {
		return 0
	}
	return len(r.waivers)
}
