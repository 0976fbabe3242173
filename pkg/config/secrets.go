package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/postbox-io/postbox/pkg/observability"
)

// Secrets is one immutable snapshot of the file-backed secrets.
type Secrets struct {
	ClientSecret  string `json:"client_secret"`
	WebhookSecret string `json:"webhook_secret"`
}

// SecretsWatcher keeps the current secrets snapshot loaded from a JSON file
// and swaps it when the file changes. Readers always see a complete
// snapshot, never a half-written one.
type SecretsWatcher struct {
	path    string
	current atomic.Pointer[Secrets]
	watcher *fsnotify.Watcher
	logger  *observability.Logger
	done    chan struct{}
}

// NewSecretsWatcher loads the file once and starts watching its directory.
// Watching the directory instead of the file survives the rename-and-replace
// dance most secret mounts (and editors) do.
func NewSecretsWatcher(path string, logger *observability.Logger) (*SecretsWatcher, error) {
	w := &SecretsWatcher{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := w.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create secrets watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch secrets directory: %w", err)
	}
	w.watcher = watcher

	go w.run()
	return w, nil
}

// Current returns the latest snapshot.
func (w *SecretsWatcher) Current() *Secrets {
	return w.current.Load()
}

// Close stops the watcher.
func (w *SecretsWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *SecretsWatcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				// Keep serving the previous snapshot on a bad write.
				w.logger.WithError(err).Error("reload secrets file")
				continue
			}
			w.logger.WithField("path", w.path).Info("secrets reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("secrets watcher error")
		}
	}
}

func (w *SecretsWatcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("read secrets file: %w", err)
	}
	var secrets Secrets
	if err := json.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets file: %w", err)
	}
	if secrets.WebhookSecret == "" {
		return fmt.Errorf("secrets file %s: webhook_secret is required", w.path)
	}
	w.current.Store(&secrets)
	return nil
}
