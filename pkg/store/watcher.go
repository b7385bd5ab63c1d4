// Copyright 2025 The Dowser Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces the write bursts editors produce when
// saving a file.
const defaultDebounce = 100 * time.Millisecond

const (
	watchUpsert = "upsert"
	watchDelete = "delete"
)

type watchEvent struct {
	kind string
	path string
}

// fileWatcher watches one directory source for changes and hands
// debounced events to the store.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	source   *DirectorySource
	debounce time.Duration
	handle   func(ctx context.Context, event watchEvent)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newFileWatcher(source *DirectorySource, debounce time.Duration, handle func(context.Context, watchEvent)) (*fileWatcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &fileWatcher{
		watcher:  fsWatcher,
		source:   source,
		debounce: debounce,
		handle:   handle,
		pending:  make(map[string]*time.Timer),
	}
	if err := w.addRecursive(source.Root()); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive registers root and every non-excluded subdirectory.
// fsnotify does not watch recursively on its own.
func (w *fileWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return nil
		}
		if path != w.source.Root() && w.source.filter.ShouldSkipDir(w.source.relPath(path)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			slog.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *fileWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", "error", err)
		}
	}
}

func (w *fileWatcher) handleFsEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&fsnotify.Chmod != 0 {
		return
	}

	path := event.Name
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.cancelPending(path)
		w.handle(ctx, watchEvent{kind: watchDelete, path: path})

	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if event.Op&fsnotify.Create != 0 {
				if err := w.addRecursive(path); err != nil {
					slog.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
		if !w.source.filter.ShouldInclude(w.source.relPath(path)) {
			return
		}
		w.debounceUpsert(ctx, path)
	}
}

// debounceUpsert coalesces a burst of writes to one file into a
// single re-ingest.
func (w *fileWatcher) debounceUpsert(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		w.handle(ctx, watchEvent{kind: watchUpsert, path: path})
	})
}

func (w *fileWatcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}

func (w *fileWatcher) close() {
	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.watcher.Close()
}
