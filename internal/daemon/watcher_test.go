package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// collector gathers watcher callbacks under a lock.
type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) add(path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
}

func (c *collector) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

// dropJob writes a proposal job file the way clients are told to: tmp write,
// then rename into the inbox.
func dropJob(t *testing.T, inbox, id string) string {
	t.Helper()
	body := fmt.Sprintf(`{"id":%q,"proposal":{"title":"expand EU support"}}`, id)
	path := filepath.Join(inbox, id+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInboxWatcherDetectsDroppedProposal(t *testing.T) {
	inbox := t.TempDir()
	var got collector

	w := NewInboxWatcher(inbox, got.add)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Give watcher time to start.
	time.Sleep(100 * time.Millisecond)

	jobPath := dropJob(t, inbox, "prop-001")

	// Wait for debounce + dispatch.
	time.Sleep(500 * time.Millisecond)
	cancel()

	seen := got.seen()
	if len(seen) != 1 {
		t.Fatalf("expected 1 job, got %d", len(seen))
	}
	if seen[0] != jobPath {
		t.Errorf("got path %q, want %q", seen[0], jobPath)
	}
}

func TestInboxWatcherIgnoresPartialWrites(t *testing.T) {
	inbox := t.TempDir()
	var got collector

	w := NewInboxWatcher(inbox, got.add)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// A .tmp file is a write in progress, never a job.
	tmp := filepath.Join(inbox, "prop-002.json.tmp")
	if err := os.WriteFile(tmp, []byte(`{"id":"prop-002"}`), 0600); err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)
	cancel()

	if seen := got.seen(); len(seen) != 0 {
		t.Errorf("partial write must not dispatch, got %v", seen)
	}
}

func TestInboxWatcherStopsOnCancel(t *testing.T) {
	w := NewInboxWatcher(t.TempDir(), func(string) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func TestPollWatcherDetectsDroppedProposal(t *testing.T) {
	inbox := t.TempDir()
	var got collector

	w := NewPollWatcher(inbox, got.add, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	dropJob(t, inbox, "poll-001")

	// Wait for a poll cycle.
	time.Sleep(200 * time.Millisecond)
	cancel()

	if seen := got.seen(); len(seen) != 1 {
		t.Fatalf("expected 1 job, got %d", len(seen))
	}
}

func TestPollWatcherDispatchesOnce(t *testing.T) {
	inbox := t.TempDir()
	var got collector

	w := NewPollWatcher(inbox, got.add, 50*time.Millisecond)
	dropJob(t, inbox, "dup-001")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Several poll cycles over the same file.
	time.Sleep(300 * time.Millisecond)
	cancel()

	if seen := got.seen(); len(seen) != 1 {
		t.Errorf("job should be dispatched exactly once, got %d", len(seen))
	}
}

func TestScanExisting(t *testing.T) {
	inbox := t.TempDir()
	for _, name := range []string{"a.json", "b.json", "c.tmp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(inbox, name), []byte(`{}`), 0600); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	if err := ScanExisting(inbox, func(path string) {
		got = append(got, filepath.Base(path))
	}); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 .json files, got %d: %v", len(got), got)
	}
}

func TestScanExistingMissingDir(t *testing.T) {
	var count int
	if err := ScanExisting(filepath.Join(t.TempDir(), "absent"), func(string) { count++ }); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}

func TestIsJobFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"prop-001.json", true},
		{"proposal.json", true},
		{"prop.json.tmp", false},
		{"readme.txt", false},
		{"data.csv", false},
		{".hidden.json", true},
	}
	for _, tt := range tests {
		if got := isJobFile(tt.path); got != tt.want {
			t.Errorf("isJobFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
