package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
//
// The file's directory is watched rather than the file itself so that
// editors replacing the file by rename keep being observed.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)
	logger   *zap.Logger

	reloads atomic.Int64
	errors  atomic.Int64
}

// NewWatcher creates a watcher for path. onChange receives every config that
// parses; a file that fails to parse is logged and skipped.
func NewWatcher(path string, onChange func(*Config), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   logger,
	}
}

// SetDebounce changes the debounce interval. It must be called before Run.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Reloads returns how many times the config was reloaded.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// Errors returns how many reloads failed.
func (w *Watcher) Errors() int64 { return w.errors.Load() }

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	w.logger.Debug("watching config", zap.String("path", abs))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.errors.Add(1)
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-timer.C:
			w.reload(abs)
		}
	}
}

func (w *Watcher) reload(path string) {
	cfg, err := LoadFile(path)
	if err != nil {
		w.errors.Add(1)
		w.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
		return
	}
	w.reloads.Add(1)
	w.logger.Info("config reloaded", zap.String("path", path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
