// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/yuki/internal/logging"
)

// =============================================================================
// RELOADER
// =============================================================================

// Reloader holds the current config and swaps it atomically on reload.
// Readers call Current once per operation; the pointer they get is never
// mutated afterwards.
type Reloader struct {
	path      string
	overrides Overrides
	logger    logging.Logger

	current   atomic.Pointer[Config]
	mu        sync.Mutex // serializes reload
	listeners []func(*Config)

	debounce time.Duration
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewReloader creates a Reloader with the given initial config. Reloads
// re-read initial.Path and re-apply the same command-line overrides.
func NewReloader(initial *Config, overrides Overrides, logger logging.Logger) *Reloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Reloader{
		path:      initial.Path,
		overrides: overrides,
		logger:    logger,
		debounce:  250 * time.Millisecond,
	}
	r.current.Store(initial)
	return r
}

// Current returns the current config (lock-free atomic read).
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers a callback invoked after successful reload.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-reads the config file and notifies listeners. On error the
// current config is kept.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := LoadWith(r.path, r.overrides)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	r.current.Store(cfg)
	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}

// =============================================================================
// FILE WATCHING
// =============================================================================

// Watch starts watching the config file for changes. The parent directory
// is watched so editors that replace the file by rename are handled.
// Watching stops when ctx is cancelled or Close is called.
func (r *Reloader) Watch(ctx context.Context) error {
	if r.path == "" {
		return fmt.Errorf("no config path to watch")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(r.path), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.watcher = w
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.processEvents(ctx)
	return nil
}

// Close stops watching. Safe to call when Watch was never started.
func (r *Reloader) Close() error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	<-r.done
	return r.watcher.Close()
}

func (r *Reloader) processEvents(ctx context.Context) {
	defer close(r.done)

	target := filepath.Clean(r.path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors emit several events per save; reload once they settle.
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := r.Reload(); err != nil {
				r.logger.Warnf(ctx, "config reload failed, keeping previous config: %v", err)
				continue
			}
			r.logger.Infof(ctx, "config reloaded from %s", r.path)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warnf(ctx, "config watcher error: %v", err)
		}
	}
}
