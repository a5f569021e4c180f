package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Set when template files in its override directory change.
type Watcher struct {
	set          *Set
	watcher      *fsnotify.Watcher
	logger       *slog.Logger
	debounceTime time.Duration
	reloadChan   chan struct{}
	stopOnce     sync.Once
	stopChan     chan struct{}
	onReload     func(error)
}

// NewWatcher creates a watcher for set's override directory.
func NewWatcher(set *Set, logger *slog.Logger) (*Watcher, error) {
	if set.Dir() == "" {
		return nil, fmt.Errorf("prompt set has no override directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		set:          set,
		watcher:      w,
		logger:       logger,
		debounceTime: 500 * time.Millisecond,
		reloadChan:   make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the directory is registered.
func (w *Watcher) Start(ctx context.Context) error {
	dir, err := filepath.Abs(w.set.Dir())
	if err != nil {
		return fmt.Errorf("failed to resolve prompt directory: %w", err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch prompt directory %s: %w", dir, err)
	}
	w.logger.Info("Watching prompt templates", slog.String("dir", dir))
	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".tmpl" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.logger.Debug("Prompt template changed", slog.String("file", event.Name), slog.String("op", event.Op.String()))
				w.triggerReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Prompt watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	var timer *time.Timer
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	for {
		select {
		case <-ctx.Done():
			stop()
			return
		case <-w.stopChan:
			stop()
			return
		case <-w.reloadChan:
			stop()
			timer = time.AfterFunc(w.debounceTime, w.reload)
		}
	}
}

func (w *Watcher) reload() {
	err := w.set.Reload()
	if err != nil {
		w.logger.Error("Failed to reload prompt templates", slog.Any("error", err))
	} else {
		w.logger.Info("Prompt templates reloaded")
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

func (w *Watcher) triggerReload() {
	select {
	case w.reloadChan <- struct{}{}:
	default:
	}
}
