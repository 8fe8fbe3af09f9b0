package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/wikiport/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Change kinds reported to an EventCallback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

type watcher struct {
	db     PageIndex
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback
}

// Watch follows edits to the vault with fsnotify and keeps the index in step
// until ctx is cancelled. Directories created later are watched too; hidden
// entries (.obsidian, temp files) are ignored. A rename removes the old
// entry at once and triggers a debounced reconcile that picks up the new
// name.
func Watch(ctx context.Context, db PageIndex, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	w := &watcher{db: db, store: store, root: store.Root(), logger: logger, cb: cb}
	if err := w.addDirs(fw, w.root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", w.root))

	reconcile := time.NewTimer(reconcileDelay)
	reconcile.Stop()
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case <-reconcile.C:
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(fw, ev) {
				reconcile.Reset(reconcileDelay)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle applies one fsnotify event and reports whether a reconcile pass
// is needed.
func (w *watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if hidden(filepath.Base(ev.Name)) {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addDirs(fw, ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			w.indexDir(ev.Name)
			return false
		}
	}

	if !isPage(ev.Name) {
		return false
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return false
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		kind := ChangeUpdated
		if ev.Has(fsnotify.Create) {
			kind = ChangeCreated
		}
		w.index(rel, kind)
	case ev.Has(fsnotify.Remove):
		w.remove(rel)
	case ev.Has(fsnotify.Rename):
		// fsnotify reports the old name only; the new one arrives as Create
		// when it stays inside a watched directory.
		w.remove(rel)
		return true
	}
	return false
}

func (w *watcher) index(rel, kind string) bool {
	data, err := w.store.Read(rel)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	if err := IndexFile(w.db, rel, data, time.Now()); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	w.notify(kind, rel)
	return true
}

func (w *watcher) remove(rel string) {
	if err := w.db.DeletePage(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	w.notify(ChangeDeleted, rel)
}

// reconcile compares checksums in the index with the files on disk, dropping
// stale entries and indexing files the events missed.
func (w *watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			w.remove(p)
		}
	}
	for p, cs := range disk {
		if checksums[p] == cs {
			continue
		}
		kind := ChangeCreated
		if _, known := checksums[p]; known {
			kind = ChangeUpdated
		}
		w.index(p, kind)
	}
}

// indexDir indexes pages already present in a newly created directory.
func (w *watcher) indexDir(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden(d.Name()) || !isPage(p) {
			return nil
		}
		if rel, ok := w.rel(p); ok {
			w.index(rel, ChangeCreated)
		}
		return nil
	})
}

func (w *watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *watcher) notify(kind, rel string) {
	if w.cb != nil {
		w.cb(kind, rel)
	}
}

// addDirs adds root and its non-hidden subdirectories to the watcher.
func (w *watcher) addDirs(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

func isPage(name string) bool { return strings.EqualFold(filepath.Ext(name), ".md") }
