package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/chatline/internal/logger"
)

// Watch reloads path whenever it is written and passes the result to fn.
// Files that fail to load or validate are reported to log and skipped. The
// parent directory is watched so editors that replace the file are seen.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, log logger.Sink, fn func(*Config)) error {
	if log == nil {
		log = logger.Nop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				log.Warn("config reload failed: %v", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				log.Warn("config reload rejected: %v", err)
				continue
			}
			log.Debug("config reloaded from %s", abs)
			fn(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error: %v", err)
		}
	}
}
