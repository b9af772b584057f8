package preview

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Watcher recompiles a script preview whenever its bundle source
// changes on disk, so an editor save shows up in the next Send.
type Watcher struct {
	preview *ScriptPreview
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	stabilityThreshold time.Duration
	debounceTimers     map[string]*time.Timer
	debounceMu         sync.Mutex
	done               chan struct{}
	stopOnce           sync.Once
}

// NewWatcher creates a watcher over the preview's bundle directory.
func NewWatcher(preview *ScriptPreview, logger *zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	l := log.Logger
	if logger != nil {
		l = *logger
	}

	return &Watcher{
		preview:            preview,
		watcher:            fsWatcher,
		logger:             l.With().Str("component", "bundle-watcher").Logger(),
		stabilityThreshold: 250 * time.Millisecond,
		debounceTimers:     make(map[string]*time.Timer),
		done:               make(chan struct{}),
	}, nil
}

// Start begins watching. Recompiles run on the watcher goroutine and
// use ctx; canceling it stops recompiles but not the watch itself.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.preview.bundle.Dir); err != nil {
		return fmt.Errorf("failed to watch bundle directory: %w", err)
	}

	go w.eventLoop(ctx)

	w.logger.Info().
		Str("dir", w.preview.bundle.Dir).
		Msg("Bundle watcher started")

	return nil
}

// Stop halts the watcher and cancels pending debounce timers.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	clear(w.debounceTimers)
	w.debounceMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !w.isBundleSource(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// Editors fire several writes per save; debounce to one recompile.
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, exists := w.debounceTimers[event.Name]; exists {
		timer.Stop()
	}

	name := event.Name
	w.debounceTimers[name] = time.AfterFunc(w.stabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, name)
		w.debounceMu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		if err := w.preview.Recompile(ctx); err != nil {
			w.logger.Error().
				Err(err).
				Str("path", name).
				Msg("Recompile after source change failed")
		}
	})
}

func (w *Watcher) isBundleSource(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, bundleSourceExt) &&
		strings.TrimSuffix(base, bundleSourceExt) == w.preview.bundle.Name
}

const bundleSourceExt = ".agent"
