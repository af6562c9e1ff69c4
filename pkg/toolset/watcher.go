package toolset

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ManifestWatcher reloads a registry when its manifest file changes. Events
// are debounced so editors that write in multiple steps trigger one reload.
type ManifestWatcher struct {
	watcher      *fsnotify.Watcher
	registry     *Registry
	manifestPath string
	debounce     time.Duration
	done         chan struct{}
	timerMu      sync.Mutex
	timer        *time.Timer
	stopOnce     sync.Once
}

// NewManifestWatcher creates a watcher for the manifest at path.
func NewManifestWatcher(registry *Registry, path string) (*ManifestWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &ManifestWatcher{
		watcher:      watcher,
		registry:     registry,
		manifestPath: path,
		debounce:     100 * time.Millisecond,
		done:         make(chan struct{}),
	}, nil
}

// Start begins watching the manifest's directory.
func (w *ManifestWatcher) Start() error {
	// Watch the directory, not the file: editors replace files on save.
	if err := w.watcher.Add(filepath.Dir(w.manifestPath)); err != nil {
		return fmt.Errorf("failed to watch manifest directory: %w", err)
	}

	go w.eventLoop()

	log.Info().Str("path", w.manifestPath).Msg("Toolset manifest watcher started")
	return nil
}

// Stop stops the watcher.
func (w *ManifestWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	log.Info().Msg("Toolset manifest watcher stopped")
	return nil
}

func (w *ManifestWatcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.manifestPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Toolset manifest watcher error")
		}
	}
}

func (w *ManifestWatcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.registry.Reload(w.manifestPath); err != nil {
			log.Error().Err(err).Str("path", w.manifestPath).Msg("Failed to reload toolset manifest")
		}
	})
}
