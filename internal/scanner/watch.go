// SPDX-License-Identifier: MIT

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/mediadex/mediadex/internal/log"
)

// Watcher keeps a persistent eye on scanned directories and re-emits files
// that appear after the initial sweep. An optional rescan interval triggers
// full re-scans of the configured roots.
type Watcher struct {
	scanner *Scanner
	sink    Sink
	roots   []string
	rescan  time.Duration
	settle  time.Duration
	logger  zerolog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	counter int64
}

// NewWatcher wires a watcher to an existing scanner. The scanner's
// OnDirectory hook is claimed by the watcher.
func NewWatcher(s *Scanner, sink Sink, roots []string, rescan time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		scanner: s,
		sink:    sink,
		roots:   roots,
		rescan:  rescan,
		settle:  500 * time.Millisecond,
		logger:  log.WithComponent("watcher"),
		fsw:     fsw,
		timers:  make(map[string]*time.Timer),
	}
	s.OnDirectory = func(dir string) {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("directory", dir).Msg("watch add failed")
		}
	}
	return w, nil
}

// Run consumes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	var rescanC <-chan time.Time
	if w.rescan > 0 {
		ticker := time.NewTicker(w.rescan)
		defer ticker.Stop()
		rescanC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				w.settleThenEmit(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		case <-rescanC:
			w.logger.Info().Msg("periodic rescan")
			w.scanner.Wait()
			w.scanner.Clear()
			w.scanner.Add(w.roots...)
		}
	}
}

// settleThenEmit defers classification until the path has stopped changing,
// so half-written files are not picked up mid-copy.
func (w *Watcher) settleThenEmit(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.emit(path)
	})
}

func (w *Watcher) emit(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return // deleted before it settled
	}
	if info.IsDir() {
		w.scanner.Add(path)
		return
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return
	}
	kind, ok := w.scanner.Matcher()(real)
	if !ok {
		return
	}
	if !w.scanner.markSeen(real) {
		return
	}
	w.scanner.files.Add(1)
	w.sink.Scanned(Event{
		Index: w.scanner.emitted.Add(1),
		Type:  kind,
		Path:  real,
	})
}
