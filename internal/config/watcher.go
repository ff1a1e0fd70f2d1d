package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/engine"
)

const defaultDebounce = 250 * time.Millisecond

// ApplyFunc receives the engine section of a reloaded configuration.
type ApplyFunc func(engine.Config) error

// Watcher reloads the configuration when its YAML file changes and hands
// the engine section to an ApplyFunc. Invalid reloads are logged and
// ignored; the running configuration is kept.
type Watcher struct {
	source   Source
	apply    ApplyFunc
	logger   *zap.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches the directory holding source.File, so that editors
// which replace the file through a rename are still seen.
func NewWatcher(source Source, apply ApplyFunc, logger *zap.Logger) (*Watcher, error) {
	if source.File == "" {
		return nil, fmt.Errorf("NewWatcher: no config file to watch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("NewWatcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(source.File)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("NewWatcher: %w", err)
	}
	return &Watcher{
		source:   source,
		apply:    apply,
		logger:   logger,
		debounce: defaultDebounce,
		fsw:      fsw,
	}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	target := filepath.Clean(w.source.File)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// schedule coalesces bursts of events into one reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.source.Load()
	if err != nil {
		w.logger.Error("config reload failed, keeping current configuration",
			zap.String("file", w.source.File),
			zap.Error(err),
		)
		return
	}
	if err := w.apply(cfg.Engine); err != nil {
		w.logger.Error("config reload rejected",
			zap.String("file", w.source.File),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("config reloaded",
		zap.String("file", w.source.File),
		zap.Bool("strict_mode", cfg.Engine.StrictMode),
		zap.Float64("min_compliance_score", cfg.Engine.MinComplianceScore),
	)
}
