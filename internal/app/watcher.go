package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codedojo/internal/telemetry"
)

// solutionWatcher reloads the solution file after it has been quiet for the
// debounce period. The parent directory is watched so editors that save by
// rename are still seen.
type solutionWatcher struct {
	path     string
	debounce time.Duration
	onChange func(code string)
	log      *telemetry.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	timer *time.Timer
	last  string
}

func newSolutionWatcher(path string, debounce time.Duration, log *telemetry.Logger, onChange func(code string)) (*solutionWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	sw := &solutionWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		log:      log,
		watcher:  w,
		done:     make(chan struct{}),
	}
	if body, err := os.ReadFile(path); err == nil {
		sw.last = string(body)
	}
	return sw, nil
}

func (w *solutionWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)
}

func (w *solutionWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch.error", map[string]any{"path": w.path, "err": err})
		case <-ctx.Done():
			return
		}
	}
}

func (w *solutionWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *solutionWatcher) reload() {
	body, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Debug("watch.read_failed", map[string]any{"path": w.path, "err": err})
		return
	}
	code := string(body)
	w.mu.Lock()
	if code == w.last {
		w.mu.Unlock()
		return
	}
	w.last = code
	w.mu.Unlock()
	w.log.Info("watch.reloaded", map[string]any{"path": w.path, "bytes": len(body)})
	w.onChange(code)
}

// Remember records code written by the app itself so it is not reported
// back as an edit.
func (w *solutionWatcher) Remember(code string) {
	w.mu.Lock()
	w.last = code
	w.mu.Unlock()
}

func (w *solutionWatcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	if w.cancel != nil {
		<-w.done
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}
