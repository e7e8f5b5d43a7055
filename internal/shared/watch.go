package shared

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// ConfigDebounce is the quiet period before a changed config file is reloaded.
var ConfigDebounce = 250 * time.Millisecond

// WatchConfig reloads the config at path whenever it changes on disk and passes each
// valid result to onChange. Invalid files are logged and skipped.
//
// The parent directory is watched so editors that replace the file on save are handled.
// Blocks until ctx is cancelled.
func WatchConfig(ctx context.Context, path string, logger *log.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		config, err := LoadConfig(path)
		if err != nil {
			logger.Warn("config reload failed", "path", path, "error", err)
			return
		}
		logger.Info("config reloaded", "path", path)
		onChange(config)
	}
	debounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(ConfigDebounce, reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				logger.Debug("config change detected", "path", path, "op", ev.Op.String())
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
