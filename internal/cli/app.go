// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jeranaias/yuki/internal/completion"
	"github.com/jeranaias/yuki/internal/config"
	"github.com/jeranaias/yuki/internal/logging"
	"github.com/jeranaias/yuki/internal/storage"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds the dependencies built once per invocation from the loaded
// config. Nothing here is global.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	store    *storage.Store
	client   *completion.Client
	reloader *config.Reloader
}

// overridesFromFlags collects the command-line config overrides.
func overridesFromFlags(cmd *cli.Command) config.Overrides {
	return config.Overrides{
		URL:   cmd.String("url"),
		Model: cmd.String("model"),
		Debug: cmd.Bool("debug"),
	}
}

// loadConfig loads the config named by --config (or the default path) with
// flag overrides applied. Errors are *config.ConfigError.
func loadConfig(cmd *cli.Command) (*config.Config, config.Overrides, error) {
	o := overridesFromFlags(cmd)
	cfg, err := config.LoadWith(cmd.String("config"), o)
	if err != nil {
		return nil, o, err
	}
	return cfg, o, nil
}

// newApp loads configuration and builds the logger, store and client.
// Configuration errors abort here, before any session file is touched.
func newApp(cmd *cli.Command) (*app, error) {
	cfg, o, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.Init(logging.ZapConfig{
		Level:    cfg.Logging.Level,
		Mode:     logging.ModeProduction,
		Encoding: cfg.Logging.Encoding,
		File:     cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	store, err := storage.NewStore(cfg.Storage.Root, logger)
	if err != nil {
		return nil, err
	}

	reloader := config.NewReloader(cfg, o, logger)
	reloader.OnReload(serverChangeLogger(logger, cfg))
	client := completion.NewDynamicClient(func() completion.Settings {
		return completion.SettingsFromConfig(reloader.Current())
	}, logger)

	logger.Infof(context.Background(), "config loaded from %s (server=%s model=%s root=%s)",
		cfg.Path, cfg.Server.URL, cfg.Server.Model, cfg.Storage.Root)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		client:   client,
		reloader: reloader,
	}, nil
}

// serverChangeLogger returns a reload listener that logs when the endpoint or
// model differs from the previous config. The next turn uses the new values.
func serverChangeLogger(logger logging.Logger, initial *config.Config) func(*config.Config) {
	prev := initial.Server
	return func(cfg *config.Config) {
		next := cfg.Server
		if next.URL != prev.URL {
			logger.Infof(context.Background(), "server changed: %s -> %s", prev.URL, next.URL)
		}
		if next.Model != prev.Model {
			logger.Infof(context.Background(), "model changed: %s -> %s", prev.Model, next.Model)
		}
		prev = next
	}
}

// Close stops the config watcher and flushes the log.
func (a *app) Close() {
	if err := a.reloader.Close(); err != nil {
		a.logger.Warnf(context.Background(), "close config watcher: %v", err)
	}
	_ = a.logger.Sync()
}

// =============================================================================
// OUTPUT STREAMS
// =============================================================================

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
