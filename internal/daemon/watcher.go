package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDefault is how long the watcher waits after the last create event
// before dispatching, so a burst of drops is handled as one batch.
const settleDefault = 200 * time.Millisecond

// maxConcurrentJobs limits how many proposals are deliberated at once.
// Each deliberation fans out to the full evaluator pool, so this bounds
// total in-flight LLM calls under burst load.
const maxConcurrentJobs = 5

// maxQueueSize is the dispatch channel buffer. Must exceed
// maxConcurrentJobs so a settle flush never blocks.
const maxQueueSize = 200

// pollDefault is the default polling interval when fsnotify is unavailable.
const pollDefault = 5 * time.Second

// InboxWatcher watches a directory for new proposal job files via fsnotify.
type InboxWatcher struct {
	inbox   string
	handler func(path string)
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	queue   chan string
}

// NewInboxWatcher creates a watcher for the inbox directory.
func NewInboxWatcher(inbox string, handler func(path string)) *InboxWatcher {
	return &InboxWatcher{
		inbox:   inbox,
		handler: handler,
		settle:  settleDefault,
	}
}

// Run watches the inbox for new job files. Blocks until ctx is cancelled.
func (w *InboxWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.inbox); err != nil {
		return err
	}

	w.pending = make(map[string]struct{})
	w.queue = make(chan string, maxQueueSize)

	var wg sync.WaitGroup
	w.startWorkers(&wg)

	// One settle timer for the whole inbox, initialized stopped; the first
	// create event arms it, later events push it back.
	settle := time.NewTimer(w.settle)
	settle.Stop()

	defer func() {
		settle.Stop()
		w.flush(ctx)
		close(w.queue)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-settle.C:
			w.flush(ctx)

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !isJobFile(event.Name) {
				continue
			}

			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()

			if !settle.Stop() {
				select {
				case <-settle.C:
				default:
				}
			}
			settle.Reset(w.settle)

		case _, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// startWorkers launches the fixed dispatch pool. A panicking handler kills
// its job, not the worker.
func (w *InboxWatcher) startWorkers(wg *sync.WaitGroup) {
	for i := 0; i < maxConcurrentJobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range w.queue {
				func() {
					defer func() { _ = recover() }()
					w.handler(path)
				}()
			}
		}()
	}
}

// flush moves every pending path onto the dispatch queue.
func (w *InboxWatcher) flush(ctx context.Context) {
	w.mu.Lock()
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, p := range batch {
		select {
		case w.queue <- p:
		case <-ctx.Done():
			return
		}
	}
}

// PollWatcher detects new job files by scanning the inbox on a ticker.
// Fallback for filesystems where fsnotify does not work (e.g. NFS).
type PollWatcher struct {
	inbox    string
	handler  func(path string)
	interval time.Duration
	seen     map[string]bool
}

// NewPollWatcher creates a polling-based watcher.
func NewPollWatcher(inbox string, handler func(path string), interval time.Duration) *PollWatcher {
	if interval == 0 {
		interval = pollDefault
	}
	return &PollWatcher{
		inbox:    inbox,
		handler:  handler,
		interval: interval,
		seen:     make(map[string]bool),
	}
}

// Run polls the inbox directory. Blocks until ctx is cancelled.
func (w *PollWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *PollWatcher) scan() {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.inbox, e.Name())
		if !isJobFile(path) || w.seen[path] {
			continue
		}
		w.seen[path] = true
		w.handler(path)
	}
}

// ScanExisting dispatches job files already sitting in the inbox. Called at
// startup for proposals that arrived while the daemon was down.
func ScanExisting(inbox string, handler func(path string)) error {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(inbox, e.Name())
		if isJobFile(path) {
			handler(path)
		}
	}
	return nil
}

// isJobFile reports whether the file is a job (.json, not a .tmp partial).
func isJobFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp")
}
