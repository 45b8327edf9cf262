package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
)

// Event is emitted by Watch after the registry has been adjusted.
type Event struct {
	Slug    string
	Removed bool
	Err     error
}

// Watch follows the visions directory and keeps the registry in step with
// edits made outside this process: a written VISION.json refreshes its entry
// and a removed vision directory is deregistered. fn, if non-nil, is called
// for every adjustment. Watch returns when ctx is done.
func (r *Registry) Watch(ctx context.Context, fn func(Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	root := filepath.Join(r.store.Dir(), store.VisionsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := w.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	slugs, err := r.store.ListVisionSlugs()
	if err != nil {
		return err
	}
	for _, slug := range slugs {
		if err := w.Add(filepath.Join(root, slug)); err != nil {
			r.logger.Warn("cannot watch vision dir", "slug", slug, "err", err)
		}
	}

	emit := func(ev Event) {
		if fn != nil {
			fn(ev)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", "err", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			dir, name := filepath.Split(ev.Name)
			dir = filepath.Clean(dir)
			if dir == root && !model.ValidSlug(name) {
				continue
			}

			switch {
			case dir == root && ev.Has(fsnotify.Create):
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.Add(ev.Name)
					r.refresh(ctx, name, emit)
				}
			case dir == root && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)):
				if _, err := os.Stat(ev.Name); os.IsNotExist(err) {
					if res := r.Deregister(ctx, name); res.Success {
						emit(Event{Slug: name, Removed: true})
					}
				}
			case filepath.Dir(dir) == root && name == store.VisionFile &&
				(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)):
				r.refresh(ctx, filepath.Base(dir), emit)
			}
		}
	}
}

func (r *Registry) refresh(ctx context.Context, slug string, emit func(Event)) {
	v, err := r.store.LoadVision(slug)
	if err != nil || v == nil {
		return
	}
	res := r.UpdateEntry(ctx, v)
	emit(Event{Slug: slug, Err: res.Err})
}
