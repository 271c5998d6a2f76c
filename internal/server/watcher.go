// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/rigtool/internal/ignore"
)

// DefaultWatchDebounce batches rapid rule-file edits into one reload.
const DefaultWatchDebounce = 250 * time.Millisecond

// syncInterval is how often the watch list is refreshed against the
// engine's cache, which grows as queries touch new directories.
const syncInterval = 100 * time.Millisecond

// RuleWatcher invalidates the engine's compiled rules when rule files
// change on disk, so edits take effect without restarting the server. It
// watches the global rule file plus every directory the engine has loaded
// a rule file from.
type RuleWatcher struct {
	engine   *ignore.Engine
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	watched map[string]bool

	// onReload observes completed reloads. Tests hook it; nil otherwise.
	onReload func(changed []string)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuleWatcher creates a watcher for the engine's rule files. Watch must
// be called to start it.
func NewRuleWatcher(engine *ignore.Engine, debounce time.Duration) (*RuleWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create rule watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RuleWatcher{
		engine:   engine,
		watcher:  w,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		watched:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch registers the current rule locations and starts the event loop.
func (rw *RuleWatcher) Watch() error {
	if global := rw.engine.GlobalFile(); global != "" {
		rw.addDir(filepath.Dir(global))
	}
	rw.syncWatches()

	go rw.processEvents()
	go rw.processPending()
	return nil
}

// Close stops the event loop and releases the underlying watcher.
func (rw *RuleWatcher) Close() error {
	rw.cancel()
	return rw.watcher.Close()
}

// syncWatches adds watches for any directories the engine has loaded rules
// from since the last call. Directories are never unwatched; a stale watch
// on a quiet directory costs nothing.
func (rw *RuleWatcher) syncWatches() {
	for _, dir := range rw.engine.CachedDirs() {
		rw.addDir(dir)
	}
}

func (rw *RuleWatcher) addDir(dir string) {
	rw.mu.Lock()
	if rw.watched[dir] {
		rw.mu.Unlock()
		return
	}
	rw.watched[dir] = true
	rw.mu.Unlock()

	if err := rw.watcher.Add(dir); err != nil {
		rw.mu.Lock()
		delete(rw.watched, dir)
		rw.mu.Unlock()
		// A missing directory is normal: the global file's parent may not
		// exist yet. Anything else is worth a line.
		if !os.IsNotExist(err) {
			log.Printf("WATCH_ADD_FAILED | dir=%s error=%v", dir, err)
		}
	}
}

// processEvents turns raw filesystem events into pending reload entries.
func (rw *RuleWatcher) processEvents() {
	for {
		select {
		case <-rw.ctx.Done():
			return

		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if !rw.isRuleFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			rw.mu.Lock()
			rw.pending[event.Name] = time.Now()
			rw.mu.Unlock()

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("WATCH_ERROR | error=%v", err)
		}
	}
}

// processPending flushes settled changes and keeps the watch list in step
// with the engine's cache.
func (rw *RuleWatcher) processPending() {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rw.ctx.Done():
			return
		case now := <-ticker.C:
			rw.flushPending(now)
			rw.syncWatches()
		}
	}
}

// flushPending reloads rules once every pending change has been quiet for
// the debounce window, measured at now.
func (rw *RuleWatcher) flushPending(now time.Time) {
	rw.mu.Lock()
	var ready []string
	for path, at := range rw.pending {
		if now.Sub(at) >= rw.debounce {
			ready = append(ready, path)
			delete(rw.pending, path)
		}
	}
	rw.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)

	rw.engine.ClearCache()
	global := rw.engine.GlobalFile()
	for _, path := range ready {
		if global != "" && path == global {
			if err := rw.engine.ReloadGlobal(); err != nil {
				// Previous global rules stay in force on a bad reload.
				log.Printf("RULES_RELOAD_FAILED | file=%s error=%v", path, err)
			}
			break
		}
	}
	log.Printf("RULES_RELOADED | changed=%d first=%s", len(ready), ready[0])

	if rw.onReload != nil {
		rw.onReload(ready)
	}
}

// isRuleFile reports whether a changed path can affect rule evaluation.
func (rw *RuleWatcher) isRuleFile(path string) bool {
	if filepath.Base(path) == ignore.RuleFileName {
		return true
	}
	global := rw.engine.GlobalFile()
	return global != "" && path == global
}
