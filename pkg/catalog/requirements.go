package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// RequirementsFile is the YAML form of a requirement table.
//
//	requirements:
//	  Account.Bank: [account, inventories]
//	  Guild.Members: [account, guilds]
type RequirementsFile struct {
	Requirements map[string][]string `yaml:"requirements"`
}

// Requirements maps endpoint name paths to the capabilities they need.
// Keys are part names joined with ".", without indices. The table can be
// reloaded from disk while in use.
type Requirements struct {
	logger  zerolog.Logger
	mu      sync.RWMutex
	table   map[string][]string
	watcher *fsnotify.Watcher
}

// NewRequirements creates a table from an initial mapping.
func NewRequirements(logger zerolog.Logger, table map[string][]string) *Requirements {
	r := &Requirements{
		logger: logger.With().Str("component", "requirements").Logger(),
	}
	r.Replace(table)
	return r
}

// Lookup returns the capabilities registered for a name path.
func (r *Requirements) Lookup(key string) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.table[key]
	return slices.Clone(caps), ok
}

// Len returns the number of registered entries.
func (r *Requirements) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

// Replace swaps the whole table.
func (r *Requirements) Replace(table map[string][]string) {
	next := make(map[string][]string, len(table))
	for k, v := range table {
		caps := slices.Clone(v)
		if caps == nil {
			caps = []string{}
		}
		next[k] = caps
	}
	r.mu.Lock()
	r.table = next
	r.mu.Unlock()
}

// LoadFile replaces the table with the contents of a YAML file.
func (r *Requirements) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errdefs.NewConfigurationError(fmt.Sprintf("failed to read requirements %s", path), err)
	}
	var f RequirementsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errdefs.NewConfigurationError(fmt.Sprintf("failed to parse requirements %s", path), err)
	}
	r.Replace(f.Requirements)

	r.logger.Info().
		Str("path", path).
		Int("entries", len(f.Requirements)).
		Msg("Requirements loaded")
	return nil
}

// Watch reloads the table whenever the file changes. It watches the parent
// directory so that editors replacing the file are picked up. Watching stops
// when ctx is done or StopWatching is called.
func (r *Requirements) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	go r.processEvents(ctx, watcher, path)

	r.logger.Info().Str("path", path).Msg("Started watching requirements")
	return nil
}

// processEvents debounces file events and reloads the table.
func (r *Requirements) processEvents(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	var reloadTimer *time.Timer
	reloadDelay := 200 * time.Millisecond
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			r.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Requirements file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := r.LoadFile(path); err != nil {
					r.logger.Error().Err(err).Msg("Failed to reload requirements")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// StopWatching stops watching for file changes.
func (r *Requirements) StopWatching() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}
