package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RamXX/plansync/internal/lock"
	"github.com/RamXX/plansync/internal/model"
)

// LoadVision returns the vision, or nil when it is missing or corrupt.
func (s *Store) LoadVision(slug string) (*model.Vision, error) {
	return loadDoc[model.Vision](s, s.VisionPath(slug))
}

// ReadVision returns ErrNotFound or *CorruptDocumentError instead of nil.
func (s *Store) ReadVision(slug string) (*model.Vision, error) {
	return readDoc[model.Vision](s.VisionPath(slug))
}

// SaveVision validates v, writes it under its lock and refreshes the index.
func (s *Store) SaveVision(ctx context.Context, v *model.Vision) error {
	if err := saveDoc(ctx, s, "vision", v.Slug, s.VisionPath(v.Slug), v); err != nil {
		return err
	}
	s.indexUpsert(v)
	return nil
}

// UpdateVision applies fn to the on-disk vision under its lock.
func (s *Store) UpdateVision(ctx context.Context, slug string, fn func(*model.Vision) error) (*model.Vision, error) {
	v, err := updateDoc(ctx, s, "vision", slug, s.VisionPath(slug), fn)
	if err != nil {
		return nil, err
	}
	s.indexUpsert(v)
	return v, nil
}

// DeleteVision removes the vision directory and deregisters it.
func (s *Store) DeleteVision(ctx context.Context, slug string) error {
	path := s.VisionPath(slug)
	if !exists(filepath.Dir(path)) {
		return fmt.Errorf("vision %s: %w", slug, ErrNotFound)
	}
	err := lock.With(ctx, s.locker, path, func() error {
		return os.RemoveAll(filepath.Dir(path))
	})
	if err != nil {
		return fmt.Errorf("delete vision %s: %w", slug, err)
	}
	if s.index != nil {
		if err := s.index.Remove(slug); err != nil {
			s.logger.Warn("vision index remove failed", "slug", slug, "err", err)
		}
	}
	return nil
}

func (s *Store) indexUpsert(v *model.Vision) {
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(v); err != nil {
		s.logger.Warn("vision index update failed", "slug", v.Slug, "err", err)
	}
}

func (s *Store) LoadEpic(slug string) (*model.Epic, error) {
	return loadDoc[model.Epic](s, s.EpicPath(slug))
}

func (s *Store) ReadEpic(slug string) (*model.Epic, error) {
	return readDoc[model.Epic](s.EpicPath(slug))
}

func (s *Store) SaveEpic(ctx context.Context, e *model.Epic) error {
	return saveDoc(ctx, s, "epic", e.Slug, s.EpicPath(e.Slug), e)
}

func (s *Store) UpdateEpic(ctx context.Context, slug string, fn func(*model.Epic) error) (*model.Epic, error) {
	return updateDoc(ctx, s, "epic", slug, s.EpicPath(slug), fn)
}

// DeleteEpic removes the epic directory, including its roadmaps and ledger.
func (s *Store) DeleteEpic(ctx context.Context, slug string) error {
	path := s.EpicPath(slug)
	if !exists(filepath.Dir(path)) {
		return fmt.Errorf("epic %s: %w", slug, ErrNotFound)
	}
	return lock.With(ctx, s.locker, path, func() error {
		return os.RemoveAll(filepath.Dir(path))
	})
}

// Roadmaps and plans are addressed by the path their parent records.

func (s *Store) LoadRoadmap(path string) (*model.Roadmap, error) {
	return loadDoc[model.Roadmap](s, s.Resolve(path))
}

func (s *Store) ReadRoadmap(path string) (*model.Roadmap, error) {
	return readDoc[model.Roadmap](s.Resolve(path))
}

func (s *Store) SaveRoadmap(ctx context.Context, path string, r *model.Roadmap) error {
	return saveDoc(ctx, s, "roadmap", r.RoadmapID, s.Resolve(path), r)
}

func (s *Store) UpdateRoadmap(ctx context.Context, path string, fn func(*model.Roadmap) error) (*model.Roadmap, error) {
	return updateDoc(ctx, s, "roadmap", s.Rel(path), s.Resolve(path), fn)
}

func (s *Store) LoadPlan(path string) (*model.Plan, error) {
	return loadDoc[model.Plan](s, s.Resolve(path))
}

func (s *Store) ReadPlan(path string) (*model.Plan, error) {
	return readDoc[model.Plan](s.Resolve(path))
}

func (s *Store) SavePlan(ctx context.Context, path string, p *model.Plan) error {
	return saveDoc(ctx, s, "plan", p.Slug, s.Resolve(path), p)
}

func (s *Store) UpdatePlan(ctx context.Context, path string, fn func(*model.Plan) error) (*model.Plan, error) {
	return updateDoc(ctx, s, "plan", s.Rel(path), s.Resolve(path), fn)
}

// LoadLedger returns the epic's orchestrator ledger, or nil when there is none.
func (s *Store) LoadLedger(epicSlug string) (*model.Ledger, error) {
	return loadLedger(s, s.LedgerPath(epicSlug))
}

func loadLedger(s *Store, path string) (*model.Ledger, error) {
	l, err := readDoc[model.Ledger](path)
	switch {
	case err == nil:
		return l, nil
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case IsCorrupt(err):
		s.logger.Warn("corrupt ledger treated as absent", "path", path, "err", err)
		return nil, nil
	}
	return nil, err
}

// SaveLedger replaces the ledger under its lock.
func (s *Store) SaveLedger(ctx context.Context, l *model.Ledger) error {
	path := s.LedgerPath(l.EpicSlug)
	return lock.With(ctx, s.locker, path, func() error {
		l.UpdatedAt = s.Now()
		return s.WriteJSON(path, l)
	})
}

// UpdateLedger runs fn on the current ledger under its lock. A missing ledger
// is ErrNotFound.
func (s *Store) UpdateLedger(ctx context.Context, epicSlug string, fn func(*model.Ledger) error) (*model.Ledger, error) {
	path := s.LedgerPath(epicSlug)
	var out *model.Ledger
	err := lock.With(ctx, s.locker, path, func() error {
		l, err := readDoc[model.Ledger](path)
		if err != nil {
			return err
		}
		if err := fn(l); err != nil {
			return err
		}
		l.UpdatedAt = s.Now()
		if err := s.WriteJSON(path, l); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
