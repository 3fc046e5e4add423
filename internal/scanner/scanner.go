// SPDX-License-Identifier: MIT

// Package scanner implements the bounded-concurrency directory walker that
// discovers and classifies candidate media files.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/mediadex/mediadex/internal/log"
)

// TypeRule classifies files into one media kind. Patterns are doublestar
// globs matched case-insensitively against the full slash path.
type TypeRule struct {
	Name    string
	Enabled bool
	Pattern string
	Exclude string
}

// Config controls traversal behaviour.
type Config struct {
	Types          []TypeRule // evaluated in order; first match wins
	Exclude        []string   // global directory excludes
	Sort           bool       // emit directory entries in name order
	Concurrency    int
	Recursive      bool
	Dotfiles       bool
	MaxDepth       int // 0 = unlimited; at the limit files are emitted but no descent happens
	FollowSymlinks bool
}

// Event is one classified file emission.
type Event struct {
	Index int64
	Type  string
	Path  string
}

// Sink receives scanner emissions. Calls may arrive concurrently from
// multiple walker workers.
type Sink interface {
	Scanned(ev Event)
}

type item struct {
	dir   string
	depth int
}

// Scanner walks directory trees with a fixed number of workers. Every
// resolved real path enters the seen set exactly once, which both bounds
// symlink loops and guarantees at-most-once emission per path.
type Scanner struct {
	cfg    Config
	sink   Sink
	logger zerolog.Logger

	// OnDirectory, when set, observes every directory accepted for scanning.
	// The watcher uses it to establish filesystem watches.
	OnDirectory func(path string)

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []item
	pending int
	closed  bool

	seenMu sync.Mutex
	seen   map[string]struct{}

	directories atomic.Int64
	files       atomic.Int64
	emitted     atomic.Int64

	wg sync.WaitGroup
}

// New creates a scanner and starts its workers. Close must be called to
// release them.
func New(cfg Config, sink Sink) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	s := &Scanner{
		cfg:    cfg,
		sink:   sink,
		logger: log.WithComponent("scanner"),
		seen:   make(map[string]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := 0; i < cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Add resolves each root to its real path and enqueues it at depth 0.
// Unresolvable roots are logged and skipped.
func (s *Scanner) Add(paths ...string) {
	for _, p := range paths {
		real, err := filepath.EvalSymlinks(p)
		if err != nil {
			s.logger.Error().Err(err).Str("path", p).Msg("root unresolvable")
			continue
		}
		abs, err := filepath.Abs(real)
		if err != nil {
			s.logger.Error().Err(err).Str("path", p).Msg("root not absolute")
			continue
		}
		s.push(item{dir: abs, depth: 0})
	}
}

// Wait blocks until the queue has drained and all workers are idle.
func (s *Scanner) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.cond.Wait()
	}
}

// Idle reports whether no work is queued or running.
func (s *Scanner) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending == 0
}

// Clear resets the seen set, the queue and the counters. Only valid when
// idle; pending work is discarded otherwise.
func (s *Scanner) Clear() {
	s.mu.Lock()
	s.pending -= len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.seenMu.Lock()
	s.seen = make(map[string]struct{})
	s.seenMu.Unlock()

	s.directories.Store(0)
	s.files.Store(0)
}

// Close stops the workers. Pending work is abandoned.
func (s *Scanner) Close() {
	s.mu.Lock()
	s.closed = true
	s.pending -= len(s.queue)
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Directories returns the number of directories scanned.
func (s *Scanner) Directories() int64 { return s.directories.Load() }

// Files returns the number of files emitted.
func (s *Scanner) Files() int64 { return s.files.Load() }

func (s *Scanner) push(it item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, it)
	s.pending++
	s.cond.Signal()
}

func (s *Scanner) pop() (item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return item{}, false
	}
	it := s.queue[0]
	s.queue = s.queue[1:]
	return it, true
}

func (s *Scanner) finish() {
	s.mu.Lock()
	s.pending--
	if s.pending <= 0 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Scanner) worker() {
	defer s.wg.Done()
	for {
		it, ok := s.pop()
		if !ok {
			return
		}
		s.scanDir(it)
		s.finish()
	}
}

// markSeen returns true the first time path is observed.
func (s *Scanner) markSeen(path string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, ok := s.seen[path]; ok {
		return false
	}
	s.seen[path] = struct{}{}
	return true
}

func (s *Scanner) scanDir(it item) {
	if !s.markSeen(it.dir) {
		return
	}
	s.directories.Add(1)
	if s.OnDirectory != nil {
		s.OnDirectory(it.dir)
	}

	entries, err := s.readDir(it.dir)
	if err != nil {
		s.logger.Error().Err(err).Str("directory", it.dir).Msg("read directory failed")
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !s.cfg.Dotfiles && strings.HasPrefix(name, ".") {
			continue
		}

		full := filepath.Join(it.dir, name)
		isDir := entry.IsDir()

		if entry.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(full)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", full).Msg("broken symlink")
				continue
			}
			isDir = info.IsDir()
			// symlinked files always resolve; only descent into linked
			// directories is gated
			if isDir && !s.cfg.FollowSymlinks {
				continue
			}
		}

		real, err := filepath.EvalSymlinks(full)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", full).Msg("path unresolvable")
			continue
		}

		if isDir {
			if !s.cfg.Recursive {
				continue
			}
			if s.excludedDir(real) {
				continue
			}
			if s.cfg.MaxDepth > 0 && it.depth+1 > s.cfg.MaxDepth {
				s.logger.Warn().Str("directory", real).Int("depth", it.depth+1).Msg("max depth reached, not descending")
				continue
			}
			s.push(item{dir: real, depth: it.depth + 1})
			continue
		}

		kind, ok := s.classify(real)
		if !ok {
			continue
		}
		if !s.markSeen(real) {
			continue
		}
		s.files.Add(1)
		s.sink.Scanned(Event{
			Index: s.emitted.Add(1),
			Type:  kind,
			Path:  real,
		})
	}
}

// readDir lists a directory, sorted by name when configured and in native
// directory order otherwise.
func (s *Scanner) readDir(dir string) ([]fs.DirEntry, error) {
	if s.cfg.Sort {
		return os.ReadDir(dir)
	}
	f, err := os.Open(dir) // #nosec G304 -- directories come from the walk
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.ReadDir(-1)
}

func (s *Scanner) excludedDir(path string) bool {
	for _, pattern := range s.cfg.Exclude {
		if globMatch(pattern, path) {
			return true
		}
	}
	return false
}

// classify finds the first enabled type whose pattern matches the path and
// whose exclude does not.
func (s *Scanner) classify(path string) (string, bool) {
	for _, rule := range s.cfg.Types {
		if !rule.Enabled {
			continue
		}
		if !globMatch(rule.Pattern, path) {
			continue
		}
		if rule.Exclude != "" && globMatch(rule.Exclude, path) {
			continue
		}
		return rule.Name, true
	}
	return "", false
}

func globMatch(pattern, path string) bool {
	ok, err := doublestar.Match(strings.ToLower(pattern), strings.ToLower(filepath.ToSlash(path)))
	return err == nil && ok
}

// Matcher exposes classification for the watcher.
func (s *Scanner) Matcher() func(path string) (string, bool) {
	return s.classify
}
