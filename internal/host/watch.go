package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefinitionSink accepts replacement definitions.
type DefinitionSink interface {
	SetDefinition(text string) error
}

// ReloadDefinitionFile reads path into sink.
func ReloadDefinitionFile(sink DefinitionSink, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("host: read definition %s: %w", path, err)
	}
	if err := sink.SetDefinition(string(raw)); err != nil {
		return fmt.Errorf("host: apply definition %s: %w", path, err)
	}
	return nil
}

// WatchDefinitionFile reloads path into sink whenever it is written or
// recreated, until ctx is cancelled. Reloads rejected by the sink (the
// executor is not IDLE) are logged and skipped.
func WatchDefinitionFile(ctx context.Context, sink DefinitionSink, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("host: watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("host: resolve %s: %w", path, err)
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("host: watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info().Str("path", abs).Msg("host.WatchDefinitionFile watching")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := ReloadDefinitionFile(sink, abs); err != nil {
				log.Warn().Err(err).Msg("host.WatchDefinitionFile reload skipped")
				continue
			}
			log.Info().Str("path", abs).Msg("host.WatchDefinitionFile definition reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("host.WatchDefinitionFile watcher error")
		}
	}
}
