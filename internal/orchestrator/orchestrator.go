// Package orchestrator keeps the per-epic execution ledger and turns
// completion events into ledger progress. Documents are updated through
// propagate; the ledger lives in its own file under its own lock and is
// written only after propagation has released every document lock.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RamXX/plansync/internal/gating"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/propagate"
	"github.com/RamXX/plansync/internal/registry"
	"github.com/RamXX/plansync/internal/store"
)

// Orchestrator wires the store, registry and propagator together.
type Orchestrator struct {
	store    *store.Store
	registry *registry.Registry
	prop     *propagate.Propagator
	logger   *slog.Logger
}

// New returns an orchestrator. reg may be nil when no vision queries are made.
func New(s *store.Store, reg *registry.Registry, p *propagate.Propagator) *Orchestrator {
	if p == nil {
		p = propagate.New(s)
	}
	return &Orchestrator{
		store:    s,
		registry: reg,
		prop:     p,
		logger:   s.Logger().With("component", "orchestrator"),
	}
}

// Progression describes what an event did beyond document propagation.
type Progression struct {
	Propagation      *propagate.Result `json:"propagation"`
	RoadmapCompleted string            `json:"roadmap_completed,omitempty"`
	Advance          *Advance          `json:"advance,omitempty"`
	Activated        string            `json:"activated,omitempty"`
	Gate             *gating.Decision  `json:"gate,omitempty"`
	Ledger           *model.Ledger     `json:"ledger,omitempty"`
}

// HandleTaskCompleted propagates the completion and, when it finishes the
// roadmap, records that in the ledger and moves on to the next roadmap.
func (o *Orchestrator) HandleTaskCompleted(ctx context.Context, planRef, phaseID, taskID string) (*Progression, error) {
	res, err := o.prop.TaskCompleted(ctx, planRef, phaseID, taskID)
	prog := &Progression{Propagation: res}
	if err != nil {
		return prog, err
	}
	if res.EpicSlug == "" || res.Roadmap == nil || res.Roadmap.AfterStatus != string(model.StatusCompleted) {
		return prog, nil
	}
	return prog, o.roadmapCompleted(ctx, res.EpicSlug, res.RoadmapID, prog)
}

// HandleRoadmapStatusChanged applies an externally reported roadmap status
// and mirrors it into the ledger.
func (o *Orchestrator) HandleRoadmapStatusChanged(ctx context.Context, epicSlug, roadmapID string, status model.Status, reason string) (*Progression, error) {
	res, err := o.prop.RoadmapStatusChanged(ctx, epicSlug, roadmapID, status)
	prog := &Progression{Propagation: res}
	if err != nil {
		return prog, err
	}
	switch status {
	case model.StatusCompleted:
		err = o.roadmapCompleted(ctx, epicSlug, roadmapID, prog)
	case model.StatusFailed:
		prog.Ledger, err = o.FailRoadmap(ctx, epicSlug, roadmapID, reason)
	case model.StatusInProgress:
		prog.Ledger, err = o.AddActiveRoadmap(ctx, epicSlug, roadmapID)
	}
	return prog, err
}

// HandleRoadmapProgressUpdated applies an externally reported percentage.
// Reaching 100 completes the roadmap. phaseData is logged only.
func (o *Orchestrator) HandleRoadmapProgressUpdated(ctx context.Context, epicSlug, roadmapID string, pct int, phaseData map[string]any) (*Progression, error) {
	res, err := o.prop.RoadmapProgressUpdated(ctx, epicSlug, roadmapID, pct)
	prog := &Progression{Propagation: res}
	if err != nil {
		return prog, err
	}
	if len(phaseData) > 0 {
		o.logger.Debug("roadmap progress detail", "epic", epicSlug, "roadmap", roadmapID, "phase_data", phaseData)
	}
	if model.ClampPercentage(pct) == 100 {
		err = o.roadmapCompleted(ctx, epicSlug, roadmapID, prog)
	}
	return prog, err
}

// roadmapCompleted records the completion once. Whenever the ledger's
// current roadmap is done the ledger advances, skipping roadmaps that
// already finished out of order, and the next roadmap is activated if its
// gate is open.
func (o *Orchestrator) roadmapCompleted(ctx context.Context, epicSlug, roadmapID string, prog *Progression) error {
	l, err := o.Init(ctx, epicSlug)
	if err != nil {
		return err
	}
	if l.IsCompleted(roadmapID) {
		prog.Ledger = l
		return nil
	}
	if l, err = o.CompleteRoadmap(ctx, epicSlug, roadmapID); err != nil {
		return err
	}
	prog.RoadmapCompleted = roadmapID
	prog.Ledger = l
	o.logger.Info("roadmap completed", "epic", epicSlug, "roadmap", roadmapID)

	epic, err := o.store.ReadEpic(epicSlug)
	if err != nil {
		return err
	}
	if cur := l.CurrentRoadmapIndex; cur < len(epic.Roadmaps) && l.IsCompleted(epic.Roadmaps[cur].RoadmapID) {
		adv, advanced, err := o.AdvanceToNextRoadmap(ctx, epicSlug)
		if err != nil {
			return err
		}
		prog.Advance = adv
		prog.Ledger = advanced
		if adv.EpicCompleted {
			o.logger.Info("epic execution completed", "epic", epicSlug, "duration_ms", advanced.TotalDurationMs)
			return nil
		}
	}
	return o.activateCurrent(ctx, epic, prog)
}

// activateCurrent starts the ledger's current roadmap if it is not already
// running or done and its gate is open; a closed gate is checkpointed.
func (o *Orchestrator) activateCurrent(ctx context.Context, epic *model.Epic, prog *Progression) error {
	l, err := o.Init(ctx, epic.Slug)
	if err != nil {
		return err
	}
	idx := l.CurrentRoadmapIndex
	if idx >= len(epic.Roadmaps) || l.Status == model.StatusCompleted {
		prog.Ledger = l
		return nil
	}
	id := epic.Roadmaps[idx].RoadmapID
	if l.IsActive(id) || l.IsCompleted(id) {
		prog.Ledger = l
		return nil
	}
	d := gating.ForEpic(epic, idx)
	prog.Gate = &d
	if !d.CanProceed {
		blockers := make([]string, len(d.Blockers))
		for i, b := range d.Blockers {
			blockers[i] = b.String()
		}
		if _, err := o.CreateCheckpoint(ctx, epic.Slug, model.CheckpointGateBlocked, id,
			fmt.Sprintf("%s is gated", id), map[string]any{"blockers": blockers}); err != nil {
			return err
		}
		o.logger.Warn("roadmap gated", "epic", epic.Slug, "roadmap", id, "blockers", blockers)
		prog.Ledger, err = o.store.LoadLedger(epic.Slug)
		return err
	}
	if prog.Ledger, err = o.AddActiveRoadmap(ctx, epic.Slug, id); err != nil {
		return err
	}
	prog.Activated = id
	if epic.Roadmaps[idx].Status.PreStart() {
		if _, err := o.prop.RoadmapStatusChanged(ctx, epic.Slug, id, model.StatusInProgress); err != nil {
			return err
		}
	}
	o.logger.Info("roadmap activated", "epic", epic.Slug, "roadmap", id)
	return nil
}

// Start initializes the ledger and activates the current roadmap when its
// gate allows.
func (o *Orchestrator) Start(ctx context.Context, epicSlug string) (*Progression, error) {
	prog := &Progression{}
	epic, err := o.store.ReadEpic(epicSlug)
	if err != nil {
		return prog, err
	}
	return prog, o.activateCurrent(ctx, epic, prog)
}
