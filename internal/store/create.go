package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RamXX/plansync/internal/idgen"
	"github.com/RamXX/plansync/internal/model"
)

// CreateEpic writes a new epic. It fails with ErrExists when the slug is in use.
func (s *Store) CreateEpic(ctx context.Context, e *model.Epic) error {
	if exists(s.EpicPath(e.Slug)) {
		return fmt.Errorf("epic %s: %w", e.Slug, ErrExists)
	}
	if e.EpicID == "" {
		e.EpicID = idgen.NewID("epic")
	}
	if e.Status == "" {
		e.Status = model.StatusNotStarted
	}
	if e.Roadmaps == nil {
		e.Roadmaps = []model.EpicRoadmap{}
	}
	return s.SaveEpic(ctx, e)
}

// RoadmapSpec describes a roadmap to add to an epic.
type RoadmapSpec struct {
	Title     string
	Slug      string
	DependsOn []string
}

// AddRoadmap appends a roadmap entry to the epic, recomputes the epic from
// its entries and writes the roadmap document next to it. The epic entry is written first so ids and slugs are
// allocated under the epic lock; it is rolled back if the document write
// fails.
func (s *Store) AddRoadmap(ctx context.Context, epicSlug string, spec RoadmapSpec) (*model.Roadmap, error) {
	var entry model.EpicRoadmap
	var slug string
	_, err := s.UpdateEpic(ctx, epicSlug, func(e *model.Epic) error {
		base := spec.Slug
		if base == "" {
			base = idgen.Slugify(spec.Title)
		}
		var err error
		slug, err = idgen.UniqueSlug(base, func(c string) bool {
			return exists(filepath.Dir(s.NewRoadmapPath(epicSlug, c)))
		})
		if err != nil {
			return err
		}
		id := idgen.SequentialID("roadmap", func(c string) bool { return e.RoadmapIndex(c) >= 0 })
		entry = model.EpicRoadmap{
			RoadmapID: id,
			Title:     spec.Title,
			Path:      s.Rel(s.NewRoadmapPath(epicSlug, slug)),
			Status:    model.StatusNotStarted,
			DependsOn: spec.DependsOn,
		}
		e.Roadmaps = append(e.Roadmaps, entry)
		model.EpicProgress(e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add roadmap to %s: %w", epicSlug, err)
	}

	r := &model.Roadmap{
		RoadmapID:        entry.RoadmapID,
		Slug:             slug,
		Title:            spec.Title,
		Status:           model.StatusNotStarted,
		PhaseDevPlanRefs: []model.PlanRef{},
		ParentEpic:       &model.ParentEpic{EpicSlug: epicSlug, EpicPath: s.Rel(s.EpicPath(epicSlug))},
	}
	if err := s.SaveRoadmap(ctx, entry.Path, r); err != nil {
		if _, rerr := s.UpdateEpic(ctx, epicSlug, func(e *model.Epic) error {
			if i := e.RoadmapIndex(entry.RoadmapID); i >= 0 {
				e.Roadmaps = append(e.Roadmaps[:i], e.Roadmaps[i+1:]...)
			}
			return nil
		}); rerr != nil {
			s.logger.Error("roadmap rollback failed", "epic", epicSlug, "roadmap", entry.RoadmapID, "err", rerr)
		}
		return nil, err
	}
	return r, nil
}

// ParsePhaseSpec turns "id:task1,task2" into a phase. Task ids are taken
// verbatim; titles default to the id.
func ParsePhaseSpec(raw string) (model.Phase, error) {
	id, tasks, ok := strings.Cut(raw, ":")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return model.Phase{}, fmt.Errorf("invalid phase %q: expected id:task,task", raw)
	}
	ph := model.Phase{ID: id, Name: id, Status: model.StatusNotStarted, Tasks: []model.Task{}}
	for _, t := range strings.Split(tasks, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		ph.Tasks = append(ph.Tasks, model.Task{ID: t, Title: t, Status: model.StatusNotStarted})
	}
	if len(ph.Tasks) == 0 {
		return model.Phase{}, fmt.Errorf("phase %q has no tasks", id)
	}
	return ph, nil
}

// AddPlan writes a new plan and registers it on the roadmap at roadmapPath,
// recomputing the roadmap from its refs. Levels above the roadmap are left
// to propagate.SyncAll.
// The plan document is removed again if the roadmap cannot be updated.
func (s *Store) AddPlan(ctx context.Context, roadmapPath string, p *model.Plan) (*model.Plan, error) {
	if _, err := s.ReadRoadmap(roadmapPath); err != nil {
		return nil, fmt.Errorf("add plan: %w", err)
	}
	if p.Slug == "" {
		p.Slug = idgen.Slugify(p.Title)
	}
	path := s.NewPlanPath(p.Slug)
	if exists(path) {
		return nil, fmt.Errorf("plan %s: %w", p.Slug, ErrExists)
	}
	p.ParentContext = &model.ParentContext{Type: model.ParentRoadmap, Path: s.Rel(roadmapPath)}
	if p.Status == "" {
		p.Status = model.StatusNotStarted
	}
	model.PlanProgress(p)
	if err := s.SavePlan(ctx, path, p); err != nil {
		return nil, err
	}

	_, err := s.UpdateRoadmap(ctx, roadmapPath, func(r *model.Roadmap) error {
		if r.PlanIndex(p.Slug) >= 0 {
			return fmt.Errorf("roadmap already references plan %s: %w", p.Slug, ErrExists)
		}
		r.PhaseDevPlanRefs = append(r.PhaseDevPlanRefs, model.PlanRef{
			Slug:                 p.Slug,
			Title:                p.Title,
			Path:                 s.Rel(path),
			Status:               p.Status,
			CompletionPercentage: p.CompletionPercentage,
		})
		model.RoadmapProgress(r)
		return nil
	})
	if err != nil {
		if rerr := os.RemoveAll(filepath.Dir(path)); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			s.logger.Error("plan rollback failed", "plan", p.Slug, "err", rerr)
		}
		return nil, fmt.Errorf("register plan %s: %w", p.Slug, err)
	}
	return p, nil
}

// NewVision fills the defaults of a vision about to be created.
func NewVision(slug, title, description string) *model.Vision {
	return &model.Vision{
		VisionID:      idgen.NewID("vision"),
		Slug:          slug,
		Title:         title,
		Description:   description,
		Status:        model.VisionNotStarted,
		ExecutionPlan: model.ExecutionPlan{Roadmaps: []model.RoadmapSummary{}},
	}
}
