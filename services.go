package main

import (
	"fmt"
	"os"

	"SetScript/internal/bookmarks"
	"SetScript/internal/config"
	"SetScript/internal/logger"
	"SetScript/internal/notify"
	"SetScript/internal/settings"
)

// services is what both the desktop shell and the command line need: the
// resolved configuration, a logger and the two stores. The bookmark store
// publishes into hub; the shell attaches its views to it.
type services struct {
	cfg       *config.Config
	log       logger.Logger
	hub       *notify.Hub
	bookmarks *bookmarks.Store
	settings  *settings.Store
}

func openServices(dataDir string, quiet bool) (*services, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", bookmarks.ErrStorage, err)
	}

	opts := logger.Options{Level: cfg.LogLevel, Pretty: cfg.PrettyLog, File: cfg.LogFile}
	if quiet {
		// Commands print their own output; keep stderr for real problems.
		opts.Level = "warn"
	}
	log := logger.New(opts)
	log.Debug("config loaded", logger.String("data_dir", cfg.DataDir), logger.String("log_level", cfg.LogLevel))
	switch {
	case cfg.LegacyDataDir == "":
	case cfg.LegacyDataDir == cfg.DataDir:
		log.Info("using the data folder of the first release", logger.String("data_dir", cfg.DataDir))
	default:
		log.Warn("first-release bookmarks found but not in use; pass --data-dir or import them",
			logger.String("legacy_dir", cfg.LegacyDataDir),
			logger.String("data_dir", cfg.DataDir))
	}

	hub := notify.NewHub(log.With(logger.String("component", "hub")))
	store := bookmarks.New(bookmarks.Options{
		Dir:      cfg.DataDir,
		Logger:   log.With(logger.String("component", "bookmarks")),
		Notifier: hub,
	})
	if err := store.Ensure(); err != nil {
		_ = log.Sync()
		return nil, err
	}

	return &services{
		cfg:       cfg,
		log:       log,
		hub:       hub,
		bookmarks: store,
		settings:  settings.NewStore(cfg.DataDir, log.With(logger.String("component", "settings"))),
	}, nil
}

func (s *services) Close() {
	_ = s.log.Sync()
}
