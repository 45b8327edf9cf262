// Package registry maintains visions/VISION_REGISTRY.json, a denormalized
// index of every vision. The index is disposable: whenever it is missing or
// malformed it is rebuilt from the VISION.json files.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RamXX/plansync/internal/idgen"
	"github.com/RamXX/plansync/internal/lock"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
)

const (
	Version   = "1"
	scanLimit = 8
)

var (
	ErrDuplicate     = errors.New("vision slug already registered")
	ErrNotRegistered = errors.New("vision not registered")
)

// Metadata summarizes the registry file.
type Metadata struct {
	Updated   time.Time  `json:"updated"`
	RebuiltAt *time.Time `json:"rebuilt_at,omitempty"`
	Count     int        `json:"count"`
}

// File is the on-disk registry.
type File struct {
	Version  string                         `json:"version"`
	Visions  map[string]model.RegistryEntry `json:"visions"`
	Metadata Metadata                       `json:"metadata"`
}

func (f *File) valid() bool {
	return f != nil && f.Version != "" && f.Visions != nil
}

// Result reports the outcome of a mutation. Mutations never return a bare
// error so batch callers can collect outcomes.
type Result struct {
	Success bool
	Slug    string
	Err     error
}

// Registry reads and mutates the registry file of one store.
type Registry struct {
	store  *store.Store
	path   string
	locker lock.Locker
	logger *slog.Logger
}

// New returns the registry of s and installs it as s's vision index so that
// vision saves and deletes keep it current.
func New(s *store.Store) *Registry {
	r := &Registry{
		store:  s,
		path:   s.RegistryPath(),
		locker: s.FileLocker(),
		logger: s.Logger().With("component", "registry"),
	}
	s.SetVisionIndex(r)
	return r
}

// Path returns the registry file location.
func (r *Registry) Path() string { return r.path }

// Load returns the registry, rebuilding it first if it is absent or invalid.
func (r *Registry) Load(ctx context.Context) (*File, error) {
	if f := r.read(); f != nil {
		return f, nil
	}
	var out *File
	err := lock.With(ctx, r.locker, r.path, func() error {
		var err error
		out, err = r.loadLocked(ctx)
		return err
	})
	return out, err
}

func (r *Registry) read() *File {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("registry unreadable", "err", err)
		}
		return nil
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil || !f.valid() {
		r.logger.Warn("registry invalid, rebuilding", "err", err)
		return nil
	}
	return &f
}

// loadLocked must run under the registry lock.
func (r *Registry) loadLocked(ctx context.Context) (*File, error) {
	if f := r.read(); f != nil {
		return f, nil
	}
	return r.rebuildLocked(ctx)
}

// Rebuild discards the registry and recreates it from the vision documents.
// Documents that fail validation or whose slug differs from their directory
// are left out.
func (r *Registry) Rebuild(ctx context.Context) (*File, error) {
	var out *File
	err := lock.With(ctx, r.locker, r.path, func() error {
		var err error
		out, err = r.rebuildLocked(ctx)
		return err
	})
	return out, err
}

func (r *Registry) rebuildLocked(ctx context.Context) (*File, error) {
	slugs, err := r.store.ListVisionSlugs()
	if err != nil {
		return nil, fmt.Errorf("scan visions: %w", err)
	}

	var mu sync.Mutex
	entries := make(map[string]model.RegistryEntry, len(slugs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanLimit)
	for _, slug := range slugs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := r.store.LoadVision(slug)
			if err != nil || v == nil {
				r.logger.Debug("skipping unreadable vision", "slug", slug, "err", err)
				return nil
			}
			if problems := v.Validate(); len(problems) > 0 || v.Slug != slug {
				r.logger.Warn("skipping invalid vision", "dir", slug, "slug", v.Slug, "problems", problems)
				return nil
			}
			mu.Lock()
			entries[slug] = model.EntryFor(v)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := r.store.Now()
	f := &File{Version: Version, Visions: entries, Metadata: Metadata{RebuiltAt: &now}}
	if err := r.saveLocked(f); err != nil {
		return nil, err
	}
	r.logger.Info("registry rebuilt", "count", len(entries))
	return f, nil
}

// Save writes f with the registry lock held.
func (r *Registry) Save(ctx context.Context, f *File) error {
	return lock.With(ctx, r.locker, r.path, func() error { return r.saveLocked(f) })
}

func (r *Registry) saveLocked(f *File) error {
	if f.Version == "" {
		f.Version = Version
	}
	if f.Visions == nil {
		f.Visions = map[string]model.RegistryEntry{}
	}
	f.Metadata.Updated = r.store.Now()
	f.Metadata.Count = len(f.Visions)
	return r.store.WriteJSON(r.path, f)
}

// mutate runs fn on the freshly loaded registry under the lock and saves it.
func (r *Registry) mutate(ctx context.Context, slug string, fn func(*File) error) Result {
	err := lock.With(ctx, r.locker, r.path, func() error {
		f, err := r.loadLocked(ctx)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		return r.saveLocked(f)
	})
	if err != nil {
		return Result{Slug: slug, Err: err}
	}
	return Result{Success: true, Slug: slug}
}

// Register adds v. A slug that is already registered fails with ErrDuplicate.
func (r *Registry) Register(ctx context.Context, v *model.Vision) Result {
	return r.mutate(ctx, v.Slug, func(f *File) error {
		if _, ok := f.Visions[v.Slug]; ok {
			return fmt.Errorf("%s: %w", v.Slug, ErrDuplicate)
		}
		f.Visions[v.Slug] = model.EntryFor(v)
		return nil
	})
}

// Deregister removes slug; an unknown slug fails with ErrNotRegistered.
func (r *Registry) Deregister(ctx context.Context, slug string) Result {
	return r.mutate(ctx, slug, func(f *File) error {
		if _, ok := f.Visions[slug]; !ok {
			return fmt.Errorf("%s: %w", slug, ErrNotRegistered)
		}
		delete(f.Visions, slug)
		return nil
	})
}

// UpdateEntry refreshes the entry shadowing v, adding it if absent.
func (r *Registry) UpdateEntry(ctx context.Context, v *model.Vision) Result {
	return r.mutate(ctx, v.Slug, func(f *File) error {
		f.Visions[v.Slug] = model.EntryFor(v)
		return nil
	})
}

// Upsert implements store.VisionIndex.
func (r *Registry) Upsert(v *model.Vision) error {
	return r.UpdateEntry(context.Background(), v).Err
}

// Remove implements store.VisionIndex. Removing an unknown slug is not an error.
func (r *Registry) Remove(slug string) error {
	res := r.Deregister(context.Background(), slug)
	if errors.Is(res.Err, ErrNotRegistered) {
		return nil
	}
	return res.Err
}

// IsSlugTaken reports whether slug is registered or has a vision directory.
func (r *Registry) IsSlugTaken(ctx context.Context, slug string) bool {
	if f, err := r.Load(ctx); err == nil {
		if _, ok := f.Visions[slug]; ok {
			return true
		}
	}
	_, err := os.Stat(r.store.VisionPath(slug))
	return err == nil
}

// Get returns the entry for slug.
func (r *Registry) Get(ctx context.Context, slug string) (model.RegistryEntry, bool, error) {
	f, err := r.Load(ctx)
	if err != nil {
		return model.RegistryEntry{}, false, err
	}
	e, ok := f.Visions[slug]
	return e, ok, nil
}

// List returns every entry ordered by slug.
func (r *Registry) List(ctx context.Context) ([]model.RegistryEntry, error) {
	f, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RegistryEntry, 0, len(f.Visions))
	for _, e := range f.Visions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Active returns the entries whose status is neither completed nor failed.
func (r *Registry) Active(ctx context.Context) ([]model.RegistryEntry, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.RegistryEntry
	for _, e := range all {
		if e.Status.Active() {
			out = append(out, e)
		}
	}
	return out, nil
}

// UniqueSlug slugifies base and suffixes -2, -3, ... until it is free.
func (r *Registry) UniqueSlug(ctx context.Context, base string) (string, error) {
	return idgen.UniqueSlug(idgen.Slugify(base), func(s string) bool { return r.IsSlugTaken(ctx, s) })
}

// CreateVision reserves v's slug, writes the document and rolls the
// reservation back if the write fails. An empty slug is derived from the title.
func (r *Registry) CreateVision(ctx context.Context, v *model.Vision) (*model.Vision, error) {
	if v.Slug == "" {
		slug, err := r.UniqueSlug(ctx, v.Title)
		if err != nil {
			return nil, err
		}
		v.Slug = slug
	}
	if problems := v.Validate(); len(problems) > 0 {
		return nil, &store.ValidationError{Kind: "vision", Key: v.Slug, Problems: problems}
	}
	if res := r.Register(ctx, v); !res.Success {
		return nil, res.Err
	}
	if err := r.store.SaveVision(ctx, v); err != nil {
		if res := r.Deregister(ctx, v.Slug); !res.Success {
			r.logger.Error("rollback of slug reservation failed", "slug", v.Slug, "err", res.Err)
		}
		return nil, fmt.Errorf("create vision %s: %w", v.Slug, err)
	}
	return v, nil
}
