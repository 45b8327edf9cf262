// Package propagate carries a task completion up the hierarchy:
// plan, roadmap, epic, vision. Each level is recomputed inside its own
// update from the children as they are on disk once the level's lock is
// held, so concurrent completions under one parent converge. Levels are
// written independently; a failure stops the walk but keeps what was
// already written, and re-driving the walk is idempotent.
package propagate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
)

// Levels named in LevelChange.
const (
	LevelPlan    = "plan"
	LevelRoadmap = "roadmap"
	LevelEpic    = "epic"
	LevelVision  = "vision"
)

// ErrTaskNotFound is returned when the phase or task id does not exist in
// the plan. It wraps store.ErrNotFound.
var ErrTaskNotFound = fmt.Errorf("task %w", store.ErrNotFound)

// ErrRoadmapNotFound means the epic has no roadmap entry with the given id.
var ErrRoadmapNotFound = fmt.Errorf("roadmap entry %w", store.ErrNotFound)

// LevelChange is the before/after of one document.
type LevelChange struct {
	Level            string `json:"level"`
	Key              string `json:"key"`
	BeforePercentage int    `json:"before_percentage"`
	AfterPercentage  int    `json:"after_percentage"`
	BeforeStatus     string `json:"before_status"`
	AfterStatus      string `json:"after_status"`
}

// Changed reports whether the percentage or status moved.
func (c *LevelChange) Changed() bool {
	return c != nil && (c.BeforePercentage != c.AfterPercentage || c.BeforeStatus != c.AfterStatus)
}

// Result reports each level touched; a nil level was not reached, either
// because the document has no parent of that kind or because an earlier
// level failed.
type Result struct {
	Plan    *LevelChange `json:"plan"`
	Roadmap *LevelChange `json:"roadmap"`
	Epic    *LevelChange `json:"epic"`
	Vision  *LevelChange `json:"vision"`

	// Set alongside the changes so callers can act on the new state.
	RoadmapID string `json:"roadmap_id,omitempty"`
	EpicSlug  string `json:"epic_slug,omitempty"`
}

// Propagator drives propagation over one store.
type Propagator struct {
	store           *store.Store
	logger          *slog.Logger
	tel             telemetry
	RetryMaxElapsed time.Duration
}

// New returns a propagator using the store's logger and sync settings.
func New(s *store.Store) *Propagator {
	return &Propagator{
		store:           s,
		logger:          s.Logger().With("component", "propagate"),
		tel:             newTelemetry(),
		RetryMaxElapsed: s.Config().RetryMaxElapsed(),
	}
}

// PlanPath accepts either a document path or a bare plan slug.
func (p *Propagator) PlanPath(ref string) string {
	if strings.ContainsRune(ref, '/') || strings.ContainsRune(ref, filepath.Separator) || strings.HasSuffix(ref, ".json") {
		return ref
	}
	return p.store.NewPlanPath(ref)
}

// TaskCompleted marks the task done and propagates upward. On error the
// returned Result still describes the levels that were written.
func (p *Propagator) TaskCompleted(ctx context.Context, planRef, phaseID, taskID string) (res *Result, err error) {
	ctx, span := p.tel.start(ctx, "task_completed",
		attribute.String("plan", planRef),
		attribute.String("phase", phaseID),
		attribute.String("task", taskID))
	defer func() { p.tel.end(span, err) }()

	res = &Result{}
	planPath := p.PlanPath(planRef)

	var plan *model.Plan
	err = p.retry(ctx, func() error {
		var change *LevelChange
		var uerr error
		plan, uerr = p.store.UpdatePlan(ctx, planPath, func(pl *model.Plan) error {
			ph := pl.Phase(phaseID)
			if ph == nil {
				return fmt.Errorf("phase %s in %s: %w", phaseID, planRef, ErrTaskNotFound)
			}
			t := ph.Task(taskID)
			if t == nil {
				return fmt.Errorf("task %s/%s in %s: %w", phaseID, taskID, planRef, ErrTaskNotFound)
			}
			change = begin(LevelPlan, p.store.Rel(planPath), pl.CompletionPercentage, string(pl.Status))
			if !t.Completed || t.Status != model.StatusCompleted {
				now := p.store.Now()
				t.Completed = true
				t.Status = model.StatusCompleted
				if t.CompletedAt == nil {
					t.CompletedAt = &now
				}
			}
			model.PlanProgress(pl)
			if pl.Status == model.StatusCompleted && pl.CompletedAt == nil {
				now := p.store.Now()
				pl.CompletedAt = &now
			}
			change.finish(pl.CompletionPercentage, string(pl.Status))
			return nil
		})
		if uerr == nil {
			res.Plan = change
		}
		return uerr
	})
	if err != nil {
		return res, err
	}
	p.tel.level(ctx, LevelPlan)
	p.logger.Info("task completed", "plan", planRef, "phase", phaseID, "task", taskID,
		"plan_pct", plan.CompletionPercentage, "plan_status", plan.Status)

	pc := plan.ParentContext
	if pc == nil || pc.Type != model.ParentRoadmap || pc.Path == "" {
		return res, nil
	}
	err = p.fromRoadmap(ctx, pc.Path, res)
	return res, err
}

// fromRoadmap re-derives the roadmap at path and continues upward.
func (p *Propagator) fromRoadmap(ctx context.Context, path string, res *Result) error {
	rm, change, err := p.SyncRoadmap(ctx, path)
	if err != nil {
		return fmt.Errorf("roadmap %s: %w", path, err)
	}
	res.Roadmap = change
	res.RoadmapID = rm.RoadmapID

	epicSlug := epicSlugOf(rm)
	if epicSlug == "" {
		return nil
	}
	return p.fromEpic(ctx, epicSlug, res)
}

// fromEpic re-derives the epic and, if it names one, its vision.
func (p *Propagator) fromEpic(ctx context.Context, epicSlug string, res *Result) error {
	epic, change, err := p.SyncEpic(ctx, epicSlug)
	if err != nil {
		return fmt.Errorf("epic %s: %w", epicSlug, err)
	}
	res.Epic = change
	res.EpicSlug = epicSlug

	if epic.VisionSlug == "" {
		return nil
	}
	_, vchange, err := p.SyncVision(ctx, epic.VisionSlug, epicSlug)
	if err != nil {
		return fmt.Errorf("vision %s: %w", epic.VisionSlug, err)
	}
	res.Vision = vchange
	return nil
}

// epicSlugOf prefers the explicit slug and falls back to the directory
// holding EPIC.json.
func epicSlugOf(rm *model.Roadmap) string {
	if rm.ParentEpic == nil {
		return ""
	}
	if rm.ParentEpic.EpicSlug != "" {
		return rm.ParentEpic.EpicSlug
	}
	if rm.ParentEpic.EpicPath == "" {
		return ""
	}
	return filepath.Base(filepath.Dir(filepath.FromSlash(rm.ParentEpic.EpicPath)))
}

func begin(level, key string, pct int, status string) *LevelChange {
	return &LevelChange{Level: level, Key: key, BeforePercentage: pct, BeforeStatus: status}
}

func (c *LevelChange) finish(pct int, status string) {
	c.AfterPercentage = pct
	c.AfterStatus = status
}

// IsNotFound reports whether err means a referenced document, phase or task
// does not exist.
func IsNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
