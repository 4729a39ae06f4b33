package serve

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/metapipe/internal/logfields"
)

// watcher re-runs the pipeline when the dataset file changes. The containing
// directory is watched rather than the file itself, which survives
// editor-style save-by-rename.
type watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	trigger  chan struct{}
	debounce time.Duration
	onChange func()
}

func newWatcher(path string, debounce time.Duration, onChange func()) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("serve: create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("serve: resolve dataset path: %w", err)
	}
	return &watcher{
		path:     abs,
		fsw:      fsw,
		trigger:  make(chan struct{}, 1),
		debounce: debounce,
		onChange: onChange,
	}, nil
}

func (w *watcher) start(ctx context.Context) error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("serve: watch %s: %w", filepath.Dir(w.path), err)
	}
	slog.Info("watching dataset", logfields.Dataset(w.path))
	go w.watchLoop(ctx)
	go w.debounceLoop(ctx)
	return nil
}

func (w *watcher) stop() {
	if err := w.fsw.Close(); err != nil {
		slog.Error("closing file watcher", logfields.Error(err))
	}
}

func (w *watcher) watchLoop(ctx context.Context) {
	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				slog.Debug("dataset change detected",
					logfields.Dataset(event.Name),
					slog.String("op", event.Op.String()))
				w.fire()
			} else if event.Op&fsnotify.Remove != 0 {
				slog.Warn("dataset removed", logfields.Dataset(event.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("dataset watcher error", logfields.Error(err))
		}
	}
}

// fire requests a debounced re-run; a pending request absorbs further fires.
func (w *watcher) fire() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case _, ok := <-w.trigger:
			if !ok {
				return
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.onChange)
		}
	}
}
