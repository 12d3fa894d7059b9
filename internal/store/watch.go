package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch publishes a fresh snapshot whenever another process commits to the
// database file, so every instance attached to one file sees one feed.
// Blocks until ctx is cancelled.
//
// Filesystem events on the database and its WAL trigger a check, and a
// ticker covers platforms where WAL writes through shared memory produce no
// event. Either way the check is confirmed with PRAGMA data_version, which
// moves only when a different connection has committed.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return storageError("watch", fmt.Errorf("create watcher: %w", err))
	}
	defer watcher.Close()

	// Watch the directory: the WAL file comes and goes with checkpoints.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return storageError("watch", fmt.Errorf("watch %s: %w", dir, err))
	}

	base := filepath.Clean(s.path)
	relevant := map[string]bool{
		base:          true,
		base + "-wal": true,
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Debug("store watch starting", "component", "store", "path", s.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if relevant[filepath.Clean(ev.Name)] && ev.Has(fsnotify.Write) {
				s.checkExternal(ctx)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("store watch error", "component", "store", "error", err)

		case <-ticker.C:
			s.checkExternal(ctx)
		}
	}
}

// checkExternal publishes a snapshot if another connection committed since
// the last check.
func (s *Store) checkExternal(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	var version int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		if ctx.Err() == nil {
			slog.Warn("read data_version failed", "component", "store", "error", err)
		}
		return
	}
	if version == s.dataVersion {
		return
	}
	s.dataVersion = version

	slog.Debug("external commit detected", "component", "store", "data_version", version)
	s.publishLocked(ctx)
}
