package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/RamXX/plansync/internal/gating"
	"github.com/RamXX/plansync/internal/graph"
	"github.com/RamXX/plansync/internal/model"
)

var errNoRegistry = errors.New("orchestrator has no registry")

// ListVisions loads every vision document on disk. Unreadable ones are
// skipped, as the registry rebuild does.
func (o *Orchestrator) ListVisions(ctx context.Context) ([]*model.Vision, error) {
	slugs, err := o.store.ListVisionSlugs()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Vision, 0, len(slugs))
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := o.store.LoadVision(slug)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// GetRegisteredVisions returns the registry entries, sorted by slug.
func (o *Orchestrator) GetRegisteredVisions(ctx context.Context) ([]model.RegistryEntry, error) {
	if o.registry == nil {
		return nil, errNoRegistry
	}
	return o.registry.List(ctx)
}

// GetActiveVisions returns registry entries whose status is active.
func (o *Orchestrator) GetActiveVisions(ctx context.Context) ([]model.RegistryEntry, error) {
	if o.registry == nil {
		return nil, errNoRegistry
	}
	return o.registry.Active(ctx)
}

// EpicStatus is the combined view of an epic and its ledger.
type EpicStatus struct {
	Epic            *model.Epic   `json:"epic"`
	Ledger          *model.Ledger `json:"ledger,omitempty"`
	Ready           []string      `json:"ready"`
	Blocked         []string      `json:"blocked"`
	Stats           graph.Stats   `json:"stats"`
	NeedsCompaction bool          `json:"needs_compaction"`
}

// GetEpicStatus reads the epic, its ledger if any, and which roadmaps could
// start now.
func (o *Orchestrator) GetEpicStatus(ctx context.Context, epicSlug string) (*EpicStatus, error) {
	epic, err := o.store.ReadEpic(epicSlug)
	if err != nil {
		return nil, err
	}
	l, err := o.store.LoadLedger(epicSlug)
	if err != nil {
		return nil, err
	}
	units := gating.EpicUnits(epic)
	g := graph.Build(units)
	st := &EpicStatus{
		Epic:    epic,
		Ledger:  l,
		Ready:   []string{},
		Blocked: []string{},
		Stats:   g.Stats(),
	}
	for _, i := range gating.ReadyIndices(units) {
		st.Ready = append(st.Ready, units[i].ID)
	}
	for _, n := range g.Blocked() {
		st.Blocked = append(st.Blocked, n.ID)
	}
	if l != nil {
		st.NeedsCompaction = NeedsCompaction(l.TokenBudget)
	}
	return st, nil
}

// CheckGatingRequirements evaluates whether the roadmap at index may start.
func (o *Orchestrator) CheckGatingRequirements(ctx context.Context, epicSlug string, index int) (gating.Decision, error) {
	epic, err := o.store.ReadEpic(epicSlug)
	if err != nil {
		return gating.Decision{}, fmt.Errorf("check gating: %w", err)
	}
	return gating.ForEpic(epic, index), nil
}
