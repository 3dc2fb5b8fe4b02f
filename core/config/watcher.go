package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// ChangeFunc receives the previous and the newly loaded config.
type ChangeFunc func(old, cur *Config)

// Watcher reloads a config file when it changes on disk. Invalid files are
// logged and ignored; the last valid config stays current.
type Watcher struct {
	path string
	log  *slog.Logger
	fsw  *fsnotify.Watcher

	mu       sync.RWMutex
	current  *Config
	onChange []ChangeFunc
}

// NewWatcher loads path and prepares watching it.
func NewWatcher(path string, log *slog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// watch the directory; editors replace files instead of writing them
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &Watcher{
		path:    filepath.Clean(path),
		log:     log.With(slog.String("config", path)),
		fsw:     fsw,
		current: cfg,
	}, nil
}

func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn for later reloads.
func (w *Watcher) OnChange(fn ChangeFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			debounce = time.After(reloadDebounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", slog.Any("error", err))
		case <-debounce:
			debounce = nil
			w.Reload()
		}
	}
}

// Reload loads the file now and notifies listeners when it is valid.
func (w *Watcher) Reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("reload rejected", slog.Any("error", err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	listeners := append([]ChangeFunc(nil), w.onChange...)
	w.mu.Unlock()

	w.log.Info("config reloaded")
	for _, fn := range listeners {
		fn(old, cfg)
	}
}
