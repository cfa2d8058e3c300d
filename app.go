package main

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/nconklindev/mergeline/internal/audit"
	"github.com/nconklindev/mergeline/internal/config"
	"github.com/nconklindev/mergeline/internal/header"
	"github.com/nconklindev/mergeline/internal/ingest"
	"github.com/nconklindev/mergeline/internal/loader"
	"github.com/nconklindev/mergeline/internal/logging"
	"github.com/nconklindev/mergeline/internal/merge"
	"github.com/nconklindev/mergeline/internal/store"
)

// app owns the long-lived pieces of one invocation.
type app struct {
	engine  *ingest.Engine
	journal *audit.Journal
	log     *zap.Logger
}

func newApp(cfg *config.Config, consoleOut io.Writer) (*app, error) {
	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}

	cascade, err := loader.NewCascade(cfg.Ingest.Encodings, log.Named("loader"))
	if err != nil {
		log.Sync()
		return nil, err
	}

	journal, err := audit.OpenJournal(cfg.Paths.LogPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	fs := store.NewFileStore(cfg.Paths.MasterPath, cfg.Paths.SchemaPath,
		store.NewBackups(cfg.Paths.BackupDir, log.Named("backup")), log.Named("store"))

	locator := header.NewLocator()
	locator.ScanRows = cfg.Ingest.HeaderScanRows
	locator.Keywords = cfg.Ingest.HeaderKeywords

	engine := ingest.New(ingest.Options{
		Loader: loader.New(cascade,
			loader.WithMinRows(cfg.Ingest.MinRows),
			loader.WithMinColumns(cfg.Ingest.MinColumns),
			loader.WithLogger(log.Named("loader")),
		),
		Locator: locator,
		Merger:  merge.NewEngine(cfg.Ingest.PrimaryKey, merge.KeyMatch(cfg.Ingest.KeyMatch), log.Named("merge")),
		Repo:    fs,
		Journal: journal,
		Console: audit.NewConsole(consoleOut, cfg.Console.NoColor),
		Logger:  log,
		Exclude: append(fs.Artifacts(), cfg.Paths.LogPath, cfg.Paths.LockPath),
	})

	log.Debug("engine ready",
		zap.String("master", cfg.Paths.MasterPath),
		zap.String("primary_key", cfg.Ingest.PrimaryKey),
		zap.Strings("encodings", cascade.Names()),
	)
	return &app{engine: engine, journal: journal, log: log}, nil
}

func (a *app) Close() {
	if err := a.journal.Close(); err != nil {
		a.log.Warn("close audit log", zap.Error(err))
	}
	_ = a.log.Sync()
}
