// SPDX-License-Identifier: MIT

// Command mediadex scans media directories into a content-addressed
// catalog: every image, text and video is fingerprinted, converted to its
// canonical artifact set and recorded exactly once.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mediadex/mediadex/internal/config"
	"github.com/mediadex/mediadex/internal/indexer"
	"github.com/mediadex/mediadex/internal/log"
	"github.com/mediadex/mediadex/internal/ui"
	"github.com/mediadex/mediadex/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("mediadex", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "path to YAML configuration file")
		scan        = fs.String("scan", "", "comma-separated directories to scan (overrides config)")
		save        = fs.String("save", "", "save root for canonical artifacts (overrides config)")
		cache       = fs.String("cache", "", "indexed-path cache file (overrides config)")
		concurrency = fs.Int("concurrency", 0, "number of conversion slots (overrides config)")
		logLevel    = fs.String("log-level", "", "log level: trace, debug, info, warn, error")
		showVersion = fs.Bool("version", false, "print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Printf("mediadex %s (%s, %s)\n", version.Version, version.Commit, version.Date)
		return 0
	}

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mediadex: %v\n", err)
		return 1
	}
	if *scan != "" {
		cfg.Scan = strings.Split(*scan, ",")
	}
	if *save != "" {
		cfg.Save = *save
	}
	if *cache != "" {
		cfg.Cache = *cache
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "mediadex: %v\n", err)
		return 1
	}
	if len(cfg.Scan) == 0 {
		fmt.Fprintln(os.Stderr, "mediadex: no scan directories given (use -scan or the config file)")
		return 2
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "mediadex"})
	logger := log.WithComponent("main")
	logger.Info().Str("version", version.Version).Strs("scan", cfg.Scan).Str("save", cfg.Save).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix, err := indexer.New(indexer.Options{Config: cfg, UI: ui.NewConsole()})
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return 1
	}

	// SIGUSR1 flushes the indexed-path cache without stopping the run
	flushC := make(chan os.Signal, 1)
	signal.Notify(flushC, syscall.SIGUSR1)
	defer signal.Stop(flushC)
	go func() {
		for range flushC {
			if err := ix.Flush(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("cache flush failed")
			} else {
				logger.Info().Msg("cache flushed")
			}
		}
	}()

	if err := ix.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("startup failed")
		_ = ix.Stop()
		return 1
	}

	done := make(chan struct{})
	go func() {
		ix.Scan()
		close(done)
	}()

	code := 0
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn().Msg("interrupted, flushing cache and shutting down")
		code = 130
	}

	if err := ix.Stop(); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		if code == 0 {
			code = 1
		}
	}

	snap := ix.Stats()
	fmt.Printf("converted %d (images %d, texts %d, videos %d), duplicates %d, skipped %d, failed %d\n",
		snap.Converted, snap.Images, snap.Texts, snap.Videos, snap.Duplicates, snap.Skipped, snap.Failed)
	return code
}
