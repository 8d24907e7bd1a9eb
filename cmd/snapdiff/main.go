package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"snapdiff/internal/artifact"
	"snapdiff/internal/cli"
	"snapdiff/internal/config"
	"snapdiff/internal/logging"
	"snapdiff/internal/pipeline"
	"snapdiff/internal/session"
	"snapdiff/internal/storage"
	"snapdiff/internal/vcs"
)

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, cli.ErrScreenshotsDiffer) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logging.Setup(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dir := filepath.Dir(cfg.Paths.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	store, err := storage.Open(cfg.Storage.Driver, cfg.Paths.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	layout := artifact.Layout{Root: cfg.Paths.RepoRoot, Area: cfg.Paths.ScreenshotArea}
	repo := vcs.Git{Dir: cfg.Paths.RepoRoot}
	sess := session.New(repo, layout, cfg.StabilizeConfig(), cfg.Dimensions(), log)

	pipe := pipeline.New(ctx, cfg.Processing.ParallelJobs, log, store, pipeline.NewSessionProcessor(sess))
	defer pipe.Stop()

	return cli.NewRootCmd(cfg, log, store, pipe).ExecuteContext(ctx)
}
