package roster

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// AddedFunc receives identifiers that appeared in a roster reload.
type AddedFunc func(ctx context.Context, added []string)

// Watcher reloads a roster whenever its file changes.
type Watcher struct {
	roster  *Roster
	onAdded AddedFunc
	logger  *logging.Logger
}

// NewWatcher builds a watcher. onAdded may be nil.
func NewWatcher(r *Roster, onAdded AddedFunc, logger *logging.Logger) *Watcher {
	if r == nil {
		panic("roster: roster cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Watcher{roster: r, onAdded: onAdded, logger: logger}
}

// Run watches the roster's directory until ctx is done. Editors that replace
// the file by rename are handled because the directory, not the file, is watched.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("roster: create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.roster.Path())
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("roster: watch %s: %w", filepath.Dir(target), err)
	}
	w.logger.Info("roster: watching", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			w.reload(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("roster: watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	added, err := w.roster.Reload()
	if err != nil {
		w.logger.Error("roster: reload failed", "error", err)
		return
	}
	if len(added) > 0 && w.onAdded != nil {
		w.onAdded(ctx, added)
	}
}
