// Package watcher turns filesystem activity under the source roots into the
// debounced change batches the engine ingests. Rapid bursts of events (editor
// saves, git checkouts) collapse into one batch per quiet period, deduplicated
// per path with the last change kind winning.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/EldroidTech/eldroid-ssg/internal/logging"
	"github.com/EldroidTech/eldroid-ssg/internal/scanner"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// DefaultDebounce is the quiet period used when no delay is configured.
const DefaultDebounce = 100 * time.Millisecond

// Handler receives one debounced batch of source changes.
type Handler func(ctx context.Context, changes []types.SourceChange) error

// Watcher observes the source roots and feeds classified, debounced change
// batches to its handlers. Classification and file reading go through the
// scanner so the walk and watch paths agree on what counts as a source.
type Watcher struct {
	fsw       *fsnotify.Watcher
	src       *scanner.Scanner
	debouncer *debouncer
	handlers  []Handler
	logger    logging.Logger
	mutex     sync.RWMutex
}

// fsEvent is one raw filesystem observation before classification.
type fsEvent struct {
	path string
	kind types.ChangeKind
}

// debouncer groups rapid file changes together.
type debouncer struct {
	delay   time.Duration
	events  chan fsEvent
	output  chan []fsEvent
	timer   *time.Timer
	pending []fsEvent
	mutex   sync.Mutex
}

// New creates a watcher over the scanner's roots.
func New(src *scanner.Scanner, debounce time.Duration, logger logging.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig()).WithComponent("watcher")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsw: fsw,
		src: src,
		debouncer: &debouncer{
			delay:  debounce,
			events: make(chan fsEvent, 100),
			output: make(chan []fsEvent, 10),
		},
		logger: logger,
	}, nil
}

// AddHandler registers a handler for debounced batches.
func (w *Watcher) AddHandler(handler Handler) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.handlers = append(w.handlers, handler)
}

// WatchRoot adds a directory tree to the watch set. A missing root is
// skipped so a project without a components dir still serves.
func (w *Watcher) WatchRoot(root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && len(d.Name()) > 0 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Start launches the watch, debounce, and dispatch loops. They run until ctx
// is canceled.
func (w *Watcher) Start(ctx context.Context) {
	go w.debouncer.start(ctx)
	go w.dispatchLoop(ctx)
	go w.watchLoop(ctx)
}

// Stop stops the watcher and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	w.debouncer.mutex.Lock()
	if w.debouncer.timer != nil {
		w.debouncer.timer.Stop()
	}
	w.debouncer.mutex.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (w *Watcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	// New directories join the watch set; their pre-existing files are
	// synthesized as additions because fsnotify never saw them land.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn(ctx, err, "watch new directory", "path", event.Name)
			}
			w.enqueueExisting(event.Name)
			return
		}
	}

	var kind types.ChangeKind
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		kind = types.ChangeAdded
	case event.Op&fsnotify.Write == fsnotify.Write:
		kind = types.ChangeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		kind = types.ChangeRemoved
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		// The old name is gone; the new name arrives as its own Create.
		kind = types.ChangeRemoved
	default:
		return
	}

	w.debouncer.add(fsEvent{path: event.Name, kind: kind})
}

// enqueueExisting walks a newly created directory and queues its files as
// additions.
func (w *Watcher) enqueueExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		w.debouncer.add(fsEvent{path: path, kind: types.ChangeAdded})
		return nil
	})
}

func (w *Watcher) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-w.debouncer.output:
			changes := w.classify(ctx, events)
			if len(changes) == 0 {
				continue
			}

			w.mutex.RLock()
			handlers := w.handlers
			w.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(ctx, changes); err != nil {
					w.logger.Error(ctx, err, "change handler failed")
				}
			}
		}
	}
}

// classify maps raw events onto engine changes, reading file contents as it
// goes. A file that vanished between the event and the read is treated as
// removed.
func (w *Watcher) classify(ctx context.Context, events []fsEvent) []types.SourceChange {
	changes := make([]types.SourceChange, 0, len(events))
	for _, ev := range events {
		change, ok, err := w.src.ReadChange(ev.path, ev.kind)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				if change, ok, err = w.src.ReadChange(ev.path, types.ChangeRemoved); err == nil && ok {
					changes = append(changes, change)
				}
				continue
			}
			w.logger.Warn(ctx, err, "read changed file", "path", ev.path)
			continue
		}
		if !ok {
			continue
		}
		changes = append(changes, change)
	}
	return changes
}

// debouncer implementation

func (d *debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addPending(event)
		}
	}
}

// add hands one event to the debounce loop without ever blocking the
// fsnotify reader.
func (d *debouncer) add(event fsEvent) {
	select {
	case d.events <- event:
	default:
		// Channel full, skip this event
	}
}

func (d *debouncer) addPending(event fsEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Deduplicate by path, keeping first-seen order and the last change
	// kind. A create followed by a delete inside one window nets out as a
	// removal.
	index := make(map[string]int, len(d.pending))
	events := make([]fsEvent, 0, len(d.pending))
	for _, event := range d.pending {
		if at, seen := index[event.path]; seen {
			events[at].kind = event.kind
			continue
		}
		index[event.path] = len(events)
		events = append(events, event)
	}

	select {
	case d.output <- events:
	default:
		// Channel full, skip
	}

	d.pending = d.pending[:0]
}
