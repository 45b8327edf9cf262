package propagate

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
)

// SyncPlan recomputes a plan's phases and the plan from its tasks.
func (p *Propagator) SyncPlan(ctx context.Context, path string) (*model.Plan, *LevelChange, error) {
	var out *model.Plan
	var change *LevelChange
	err := p.retry(ctx, func() error {
		var err error
		out, err = p.store.UpdatePlan(ctx, path, func(pl *model.Plan) error {
			change = begin(LevelPlan, p.store.Rel(path), pl.CompletionPercentage, string(pl.Status))
			model.PlanProgress(pl)
			change.finish(pl.CompletionPercentage, string(pl.Status))
			return nil
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	p.tel.level(ctx, LevelPlan)
	return out, change, nil
}

// SyncRoadmap refreshes every plan ref from its plan document and
// recomputes the roadmap. Refs whose plan is missing or corrupt keep their
// recorded values.
func (p *Propagator) SyncRoadmap(ctx context.Context, path string) (*model.Roadmap, *LevelChange, error) {
	var out *model.Roadmap
	var change *LevelChange
	err := p.retry(ctx, func() error {
		var err error
		out, err = p.store.UpdateRoadmap(ctx, path, func(r *model.Roadmap) error {
			change = begin(LevelRoadmap, p.store.Rel(path), r.CompletionPercentage, string(r.Status))
			for i := range r.PhaseDevPlanRefs {
				ref := &r.PhaseDevPlanRefs[i]
				plan, err := p.store.LoadPlan(ref.Path)
				if err != nil {
					return err
				}
				if plan == nil {
					continue
				}
				ref.Status = plan.Status
				ref.CompletionPercentage = model.ClampPercentage(plan.CompletionPercentage)
				if ref.Title == "" {
					ref.Title = plan.Title
				}
			}
			model.RoadmapProgress(r)
			change.finish(r.CompletionPercentage, string(r.Status))
			return nil
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	p.tel.level(ctx, LevelRoadmap)
	return out, change, nil
}

// SyncEpic refreshes roadmap entries that point at a roadmap document and
// recomputes the epic.
func (p *Propagator) SyncEpic(ctx context.Context, slug string) (*model.Epic, *LevelChange, error) {
	return p.updateEpic(ctx, slug, nil)
}

// updateEpic is SyncEpic with an optional override applied to the entry
// named by the event after the refresh.
func (p *Propagator) updateEpic(ctx context.Context, slug string, override func(*model.Epic) error) (*model.Epic, *LevelChange, error) {
	var out *model.Epic
	var change *LevelChange
	err := p.retry(ctx, func() error {
		var err error
		out, err = p.store.UpdateEpic(ctx, slug, func(e *model.Epic) error {
			change = begin(LevelEpic, slug, e.CompletionPercentage, string(e.Status))
			for i := range e.Roadmaps {
				entry := &e.Roadmaps[i]
				if entry.Path == "" {
					continue
				}
				rm, err := p.store.LoadRoadmap(entry.Path)
				if err != nil {
					return err
				}
				if rm == nil || len(rm.PhaseDevPlanRefs) == 0 {
					continue
				}
				entry.Status = rm.Status
				entry.CompletionPercentage = model.ClampPercentage(rm.CompletionPercentage)
			}
			if override != nil {
				if err := override(e); err != nil {
					return err
				}
			}
			model.EpicProgress(e)
			change.finish(e.CompletionPercentage, string(e.Status))
			return nil
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	p.tel.level(ctx, LevelEpic)
	return out, change, nil
}

// SyncVision copies the epic's completion and mapped status onto the vision.
// Epic statuses without a vision counterpart leave the vision status alone.
func (p *Propagator) SyncVision(ctx context.Context, visionSlug, epicSlug string) (*model.Vision, *LevelChange, error) {
	var out *model.Vision
	var change *LevelChange
	err := p.retry(ctx, func() error {
		var err error
		out, err = p.store.UpdateVision(ctx, visionSlug, func(v *model.Vision) error {
			epic, err := p.store.ReadEpic(epicSlug)
			if err != nil {
				return err
			}
			change = begin(LevelVision, visionSlug, v.Metadata.CompletionPercentage, string(v.Status))
			v.Metadata.CompletionPercentage = model.ClampPercentage(epic.CompletionPercentage)
			v.Metadata.EpicSlug = epicSlug
			v.ExecutionPlan.EpicSlug = epicSlug
			v.ExecutionPlan.Roadmaps = make([]model.RoadmapSummary, len(epic.Roadmaps))
			for i, rm := range epic.Roadmaps {
				v.ExecutionPlan.Roadmaps[i] = model.RoadmapSummary{
					RoadmapID:            rm.RoadmapID,
					Title:                rm.Title,
					Status:               rm.Status,
					CompletionPercentage: rm.CompletionPercentage,
				}
			}
			if st, ok := model.VisionStatusFor(epic.Status); ok {
				v.Status = st
			}
			change.finish(v.Metadata.CompletionPercentage, string(v.Status))
			return nil
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	p.tel.level(ctx, LevelVision)
	return out, change, nil
}

// RoadmapProgressUpdated records an externally reported percentage for one
// roadmap entry and propagates to the epic and vision. The reported value
// wins over the roadmap document for that entry.
func (p *Propagator) RoadmapProgressUpdated(ctx context.Context, epicSlug, roadmapID string, pct int) (res *Result, err error) {
	ctx, span := p.tel.start(ctx, "roadmap_progress_updated",
		attribute.String("epic", epicSlug),
		attribute.String("roadmap", roadmapID),
		attribute.Int("percentage", pct))
	defer func() { p.tel.end(span, err) }()

	return p.applyEntry(ctx, epicSlug, roadmapID, func(entry *model.EpicRoadmap) {
		entry.CompletionPercentage = model.ClampPercentage(pct)
		switch {
		case entry.CompletionPercentage == 100:
			entry.Status = model.StatusCompleted
		case entry.CompletionPercentage > 0 && (entry.Status.PreStart() || entry.Status == model.StatusBlocked):
			entry.Status = model.StatusInProgress
		}
	})
}

// RoadmapStatusChanged records an externally reported status for one
// roadmap entry and propagates to the epic and vision. A completed roadmap
// is pinned at 100%.
func (p *Propagator) RoadmapStatusChanged(ctx context.Context, epicSlug, roadmapID string, status model.Status) (res *Result, err error) {
	if !status.Valid() {
		return &Result{}, fmt.Errorf("invalid roadmap status %q", status)
	}
	ctx, span := p.tel.start(ctx, "roadmap_status_changed",
		attribute.String("epic", epicSlug),
		attribute.String("roadmap", roadmapID),
		attribute.String("status", string(status)))
	defer func() { p.tel.end(span, err) }()

	return p.applyEntry(ctx, epicSlug, roadmapID, func(entry *model.EpicRoadmap) {
		entry.Status = status
		if status == model.StatusCompleted {
			entry.CompletionPercentage = 100
		}
	})
}

func (p *Propagator) applyEntry(ctx context.Context, epicSlug, roadmapID string, apply func(*model.EpicRoadmap)) (*Result, error) {
	res := &Result{RoadmapID: roadmapID, EpicSlug: epicSlug}
	epic, change, err := p.updateEpic(ctx, epicSlug, func(e *model.Epic) error {
		i := e.RoadmapIndex(roadmapID)
		if i < 0 {
			return fmt.Errorf("roadmap %s in epic %s: %w", roadmapID, epicSlug, ErrRoadmapNotFound)
		}
		apply(&e.Roadmaps[i])
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Epic = change
	if epic.VisionSlug == "" {
		return res, nil
	}
	_, vchange, err := p.SyncVision(ctx, epic.VisionSlug, epicSlug)
	if err != nil {
		return res, fmt.Errorf("vision %s: %w", epic.VisionSlug, err)
	}
	res.Vision = vchange
	return res, nil
}

// SyncAll re-drives every level of one epic bottom-up: the plans of each
// roadmap with a document, the roadmap, then the epic and its vision.
// Missing plans and roadmaps are skipped.
func (p *Propagator) SyncAll(ctx context.Context, epicSlug string) (*Result, error) {
	res := &Result{EpicSlug: epicSlug}
	epic, err := p.store.ReadEpic(epicSlug)
	if err != nil {
		return res, err
	}
	for _, entry := range epic.Roadmaps {
		if entry.Path == "" {
			continue
		}
		if err := p.syncPlansOf(ctx, entry.Path, res); err != nil {
			return res, fmt.Errorf("roadmap %s: %w", entry.RoadmapID, err)
		}
		if _, change, err := p.SyncRoadmap(ctx, entry.Path); err != nil {
			if !IsNotFound(err) && !store.IsCorrupt(err) {
				return res, fmt.Errorf("roadmap %s: %w", entry.RoadmapID, err)
			}
		} else if change.Changed() {
			res.Roadmap = change
		}
	}
	err = p.fromEpic(ctx, epicSlug, res)
	return res, err
}

func (p *Propagator) syncPlansOf(ctx context.Context, roadmapPath string, res *Result) error {
	rm, err := p.store.LoadRoadmap(roadmapPath)
	if err != nil || rm == nil {
		return err
	}
	for _, ref := range rm.PhaseDevPlanRefs {
		_, change, err := p.SyncPlan(ctx, ref.Path)
		if err != nil {
			if IsNotFound(err) || store.IsCorrupt(err) {
				p.logger.Warn("plan skipped during sync", "plan", ref.Path, "error", err)
				continue
			}
			return fmt.Errorf("plan %s: %w", ref.Slug, err)
		}
		if change.Changed() {
			res.Plan = change
		}
	}
	return nil
}

// CalculateEpicCompletion is the rounded mean of the epic's roadmap entries.
func CalculateEpicCompletion(e *model.Epic) int { return model.CalculateEpicCompletion(e) }
