// SPDX-License-Identifier: MIT

// Package indexer wires the scanner, the slot pool and the per-type
// pipelines into one run: scan roots, convert every matching file into
// content-addressed artifacts, and keep the catalog, search index and
// indexed-path cache in step.
package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mediadex/mediadex/internal/bus"
	"github.com/mediadex/mediadex/internal/catalog"
	"github.com/mediadex/mediadex/internal/config"
	"github.com/mediadex/mediadex/internal/execx"
	"github.com/mediadex/mediadex/internal/hash"
	"github.com/mediadex/mediadex/internal/log"
	"github.com/mediadex/mediadex/internal/pipeline"
	"github.com/mediadex/mediadex/internal/scanner"
	"github.com/mediadex/mediadex/internal/search"
	"github.com/mediadex/mediadex/internal/ui"
	"github.com/mediadex/mediadex/internal/version"
)

// Options assembles an Indexer. Zero-value collaborators are built from the
// configuration: a badger catalog, an FTS5 search index when enabled, the
// real process executor and the configured cache store.
type Options struct {
	Config config.AppConfig

	Catalog    catalog.Catalog
	Search     search.Index
	Exec       execx.Exec
	UI         ui.SlotUI
	CacheStore Store

	Tagger pipeline.Tagger
	Delete pipeline.DeletePolicy
}

// Indexer owns one indexing run end to end.
type Indexer struct {
	cfg    config.AppConfig
	runID  string
	logger zerolog.Logger

	bus     *bus.Bus
	stats   *pipeline.Stats
	catalog catalog.Catalog
	search  search.Index
	cache   *Cache

	scanner    *scanner.Scanner
	watcher    *scanner.Watcher
	dispatcher *pipeline.Dispatcher

	ownCatalog bool
	ownSearch  bool

	runCtx context.Context
	group  *errgroup.Group
	cancel context.CancelFunc
}

// New builds the indexer. Store startup failures are fatal; nothing is
// partially started on error.
func New(opts Options) (*Indexer, error) {
	cfg := opts.Config
	runID := uuid.NewString()
	ix := &Indexer{
		cfg:    cfg,
		runID:  runID,
		logger: log.WithComponent("indexer").With().Str("run", runID).Logger(),
		bus:    bus.New(),
		stats:  &pipeline.Stats{},
		// Start swaps in the cancelable run context; until then enqueues
		// buffer against the background context
		runCtx: context.Background(),
	}

	ix.catalog = opts.Catalog
	if ix.catalog == nil {
		cat, err := catalog.OpenBadger(cfg.Services.Database.Path)
		if err != nil {
			return nil, err
		}
		ix.catalog = cat
		ix.ownCatalog = true
	}

	ix.search = opts.Search
	if ix.search == nil {
		if cfg.Services.Search.Enabled {
			idx, err := search.OpenSQLite(cfg.Services.Search.Path)
			if err != nil {
				ix.closeStores()
				return nil, err
			}
			ix.search = idx
			ix.ownSearch = true
		} else {
			ix.search = search.Noop{}
		}
	}

	store := opts.CacheStore
	if store == nil {
		switch {
		case cfg.Services.Redis.Enabled:
			store = NewRedisStore(cfg.Services.Redis.Addr, cfg.Services.Redis.Key)
		case cfg.Cache != "":
			store = &FileStore{Path: cfg.Cache}
		}
	}
	ix.cache = NewCache(store)

	exec := opts.Exec
	if exec == nil {
		exec = execx.System{}
	}
	slotUI := opts.UI
	if slotUI == nil {
		slotUI = ui.Nop{}
	}

	pool := pipeline.NewSlotPool(cfg.Concurrency)
	core := &pipeline.Core{
		Catalog: ix.catalog,
		Search:  ix.search,
		Hasher:  hash.New(cfg.Shasum, exec),
		Exec:    exec,
		Slots:   pool,
		UI:      slotUI,
		Bus:     ix.bus,
		Stats:   ix.stats,
		Tagger:  opts.Tagger,
		Delete:  opts.Delete,
		Settle:  ix.cache.Add,
		Version: version.Version,
	}

	converters, err := buildConverters(core, cfg)
	if err != nil {
		ix.closeStores()
		return nil, err
	}
	ix.dispatcher = pipeline.NewDispatcher(pool, ix.stats, slotUI, converters...)

	ix.scanner = scanner.New(scannerConfig(cfg), sinkFunc(ix.scanned))

	if cfg.Scanner.Persistent {
		w, err := scanner.NewWatcher(ix.scanner, sinkFunc(ix.scanned), cfg.Scan,
			time.Duration(cfg.Scanner.Rescan)*time.Millisecond)
		if err != nil {
			ix.scanner.Close()
			ix.closeStores()
			return nil, err
		}
		ix.watcher = w
	}
	return ix, nil
}

func buildConverters(core *pipeline.Core, cfg config.AppConfig) ([]pipeline.Converter, error) {
	var converters []pipeline.Converter
	if cfg.Types.Image.Enabled {
		eff, err := cfg.EffectiveFor("image")
		if err != nil {
			return nil, err
		}
		converters = append(converters, pipeline.NewImage(core, cfg.Types.Image, eff))
	}
	if cfg.Types.Text.Enabled {
		eff, err := cfg.EffectiveFor("text")
		if err != nil {
			return nil, err
		}
		converters = append(converters, pipeline.NewText(core, cfg.Types.Text, eff))
	}
	if cfg.Types.Video.Enabled {
		eff, err := cfg.EffectiveFor("video")
		if err != nil {
			return nil, err
		}
		converters = append(converters, pipeline.NewVideo(core, cfg.Types.Video, eff))
	}
	return converters, nil
}

func scannerConfig(cfg config.AppConfig) scanner.Config {
	rule := func(name string, tm config.TypeMatch) scanner.TypeRule {
		return scanner.TypeRule{Name: name, Enabled: tm.Enabled, Pattern: tm.Pattern, Exclude: tm.Exclude}
	}
	return scanner.Config{
		Types: []scanner.TypeRule{
			rule("image", cfg.Types.Image.TypeMatch),
			rule("text", cfg.Types.Text.TypeMatch),
			rule("video", cfg.Types.Video.TypeMatch),
		},
		Exclude:        cfg.Scanner.Exclude,
		Sort:           cfg.Scanner.Sort,
		Concurrency:    cfg.Scanner.Concurrency,
		Recursive:      cfg.Scanner.Recursive,
		Dotfiles:       cfg.Scanner.Dotfiles,
		MaxDepth:       cfg.Scanner.MaxDepth,
		FollowSymlinks: cfg.Scanner.FollowSymlinks,
	}
}

type sinkFunc func(ev scanner.Event)

func (f sinkFunc) Scanned(ev scanner.Event) { f(ev) }

// scanned receives every classified file. Paths already in the indexed
// cache are settled without touching a slot.
func (ix *Indexer) scanned(ev scanner.Event) {
	ix.bus.Emit("scanned:"+ev.Type, ev.Path)
	if ix.cache.Contains(ev.Path) {
		ix.stats.AddSkipped(ev.Type)
		ix.bus.Emit("skipped:"+ev.Type, ev.Path)
		return
	}
	ix.dispatcher.Enqueue(ix.runCtx, pipeline.Item{Type: ev.Type, File: ev.Path})
}

// Bus exposes the event fabric for observers.
func (ix *Indexer) Bus() *bus.Bus { return ix.bus }

// Stats returns a snapshot of the run counters.
func (ix *Indexer) Stats() pipeline.Snapshot { return ix.stats.Snapshot() }

// RunID identifies this run in logs and downstream tooling.
func (ix *Indexer) RunID() string { return ix.runID }

// Start loads the cache and launches the conversion workers; with a
// persistent scanner it also starts the filesystem watcher.
func (ix *Indexer) Start(ctx context.Context) error {
	if err := ix.cache.Load(ctx); err != nil {
		return err
	}
	ix.logger.Info().Int("cached", ix.cache.Len()).Int("concurrency", ix.cfg.Concurrency).Msg("starting")

	group, runCtx := errgroup.WithContext(ctx)
	runCtx, ix.cancel = context.WithCancel(runCtx)
	ix.runCtx = runCtx
	ix.group = group

	ix.dispatcher.Start(runCtx)
	if ix.watcher != nil {
		group.Go(func() error {
			err := ix.watcher.Run(runCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return nil
}

// Scan walks the given roots (the configured ones when none are passed) and
// blocks until the traversal has drained. Conversions may still be running
// when it returns; Stop waits for those.
func (ix *Indexer) Scan(paths ...string) {
	if len(paths) == 0 {
		paths = ix.cfg.Scan
	}
	ix.scanner.Add(paths...)
	ix.scanner.Wait()
}

// Flush writes the indexed-path cache through its store. Safe to call
// mid-run, e.g. from a signal handler.
func (ix *Indexer) Flush(ctx context.Context) error {
	return ix.cache.Flush(ctx)
}

// Stop drains in-flight work, flushes the cache, closes the stores and logs
// the final tally. The first error wins; shutdown continues regardless.
func (ix *Indexer) Stop() error {
	ix.scanner.Close()
	ix.dispatcher.Close()
	if ix.cancel != nil {
		ix.cancel()
	}

	var firstErr error
	if ix.group != nil {
		if err := ix.group.Wait(); err != nil {
			firstErr = err
		}
	}
	if err := ix.cache.Flush(context.Background()); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := ix.closeStores(); err != nil && firstErr == nil {
		firstErr = err
	}

	snap := ix.stats.Snapshot()
	ix.logger.Info().
		Int64("directories", ix.scanner.Directories()).
		Int64("files", ix.scanner.Files()).
		Int64("images", snap.Images).
		Int64("texts", snap.Texts).
		Int64("videos", snap.Videos).
		Int64("converted", snap.Converted).
		Int64("duplicates", snap.Duplicates).
		Int64("skipped", snap.Skipped).
		Int64("failed", snap.Failed).
		Msg("run complete")
	return firstErr
}

func (ix *Indexer) closeStores() error {
	var firstErr error
	if ix.ownSearch && ix.search != nil {
		if err := ix.search.Close(); err != nil {
			firstErr = err
		}
	}
	if ix.ownCatalog && ix.catalog != nil {
		if err := ix.catalog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if store, ok := ix.cache.storeCloser(); ok {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// storeCloser surfaces a closable cache store (the redis backend).
func (c *Cache) storeCloser() (interface{ Close() error }, bool) {
	if c == nil {
		return nil, false
	}
	closer, ok := c.store.(interface{ Close() error })
	return closer, ok
}
