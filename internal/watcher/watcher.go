// Package watcher keeps the index in step with a project directory.
//
// It watches the tree recursively with fsnotify, debounces bursts of
// events, and hands coalesced batches to a handler: creates and modifies
// become index operations, deletes and renames become purges.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op classifies a filesystem event.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileEvent is one debounced change. Path is slash-separated and relative
// to the watched root.
type FileEvent struct {
	Path string
	Op   Op
}

// Handler reacts to a batch of debounced events. Index receives created
// and modified paths one at a time; Purge receives all removed paths of a
// batch at once.
type Handler interface {
	Index(ctx context.Context, path string) error
	Purge(ctx context.Context, paths []string) error
}

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration

	// Exclude lists directory names and patterns never watched, matching
	// the scanner's exclusions so the watcher ignores what indexing would.
	Exclude []string
}

// Watcher watches one project root.
type Watcher struct {
	root      string
	handler   Handler
	exclude   []string
	debouncer *Debouncer
	fsw       *fsnotify.Watcher
}

// New creates a watcher for root. Call Run to start it.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	window := opts.Debounce
	if window <= 0 {
		window = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:      absRoot,
		handler:   handler,
		exclude:   opts.Exclude,
		debouncer: NewDebouncer(window),
		fsw:       fsw,
	}
	if err := w.watchTree(absRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		_ = w.fsw.Close()
		w.debouncer.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleRaw(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)

		case batch := <-w.debouncer.Output():
			w.dispatch(ctx, batch)
		}
	}
}

// watchTree registers root and every non-excluded subdirectory.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel := w.relPath(path)
		if rel != "" && w.excluded(rel) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	rel := w.relPath(ev.Name)
	if rel == "" || w.excluded(rel) {
		return
	}

	// New directories need their own watch before events inside them
	// can arrive.
	if ev.Op.Has(fsnotify.Create) && isDir(ev.Name) {
		_ = w.watchTree(ev.Name)
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		w.debouncer.Add(FileEvent{Path: rel, Op: OpCreate})
	case ev.Op.Has(fsnotify.Write):
		w.debouncer.Add(FileEvent{Path: rel, Op: OpModify})
	case ev.Op.Has(fsnotify.Remove):
		w.debouncer.Add(FileEvent{Path: rel, Op: OpDelete})
	case ev.Op.Has(fsnotify.Rename):
		// The old name is gone; a Create for the new name follows.
		w.debouncer.Add(FileEvent{Path: rel, Op: OpRename})
	}
}

func (w *Watcher) dispatch(ctx context.Context, batch []FileEvent) {
	var purge []string
	for _, ev := range batch {
		switch ev.Op {
		case OpDelete, OpRename:
			purge = append(purge, ev.Path)
		default:
			if err := w.handler.Index(ctx, ev.Path); err != nil {
				slog.Warn("reindex failed", "path", ev.Path, "error", err)
			}
		}
	}
	if len(purge) > 0 {
		if err := w.handler.Purge(ctx, purge); err != nil {
			slog.Warn("purge failed", "paths", purge, "error", err)
		}
	}
}

func (w *Watcher) relPath(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) excluded(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, seg := range segments {
		if seg == ".git" || seg == ".semidx" {
			return true
		}
		for _, p := range w.exclude {
			if seg == strings.TrimSuffix(p, "/") {
				return true
			}
			if ok, _ := filepath.Match(p, seg); ok {
				return true
			}
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
