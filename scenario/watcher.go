package scenario

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shanefrancis93/anchor-research/logger"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher watches a scenario directory and coalesces file changes into
// reload signals. Consumers re-run LoadDir on each signal; the watcher does
// not parse anything itself.
type Watcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending bool

	events chan struct{}
}

// NewWatcher creates a watcher for the given scenario directory.
func NewWatcher(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		debounce: defaultDebounce,
		watcher:  fsw,
		events:   make(chan struct{}, 1),
	}, nil
}

// Events returns the reload signal channel. Signals are coalesced: many file
// changes inside one debounce window produce a single signal.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Start begins watching. The processing goroutine exits when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.process(ctx)
	logger.Info("scenario watcher started", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Stop stops the watcher. The signal channel closes once the processing
// goroutine has drained.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// process owns the events channel: it is the only sender and closes it on
// exit, so Stop can never race a send.
func (w *Watcher) process(ctx context.Context) {
	defer close(w.events)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.mu.Unlock()
			logger.Debug("scenario file changed", "file", event.Name, "op", event.Op.String())

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("scenario watcher error", "error", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

// flush emits one reload signal if changes accumulated since the last tick.
func (w *Watcher) flush() {
	w.mu.Lock()
	dirty := w.pending
	w.pending = false
	w.mu.Unlock()

	if !dirty {
		return
	}
	select {
	case w.events <- struct{}{}:
	default: // a signal is already queued
	}
}
