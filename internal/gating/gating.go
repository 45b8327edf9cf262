// Package gating decides whether the roadmap (or plan) at a given position
// may start. One evaluator serves both levels; adapters turn an epic's
// roadmaps or a roadmap's plan refs into units.
package gating

import (
	"fmt"

	"github.com/RamXX/plansync/internal/graph"
	"github.com/RamXX/plansync/internal/model"
)

// Unit is one sequenced item. DependsOn names sibling ids.
type Unit = graph.Node

// Blocker reasons.
const (
	ReasonPrevious   = "previous"
	ReasonDependency = "depends_on"
	ReasonUnknown    = "unknown_dependency"
	ReasonOutOfRange = "out_of_range"
)

// Blocker names one unfinished prerequisite.
type Blocker struct {
	ID     string       `json:"id"`
	Title  string       `json:"title,omitempty"`
	Status model.Status `json:"status,omitempty"`
	Reason string       `json:"reason"`
}

func (b Blocker) String() string {
	switch b.Reason {
	case ReasonOutOfRange:
		return fmt.Sprintf("index %s is out of range", b.ID)
	case ReasonUnknown:
		return fmt.Sprintf("depends on unknown %s", b.ID)
	}
	name := b.ID
	if b.Title != "" {
		name = fmt.Sprintf("%q (%s)", b.Title, b.ID)
	}
	status := b.Status
	if status == "" {
		status = model.StatusNotStarted
	}
	return fmt.Sprintf("%s is %s, must be completed", name, status)
}

// Decision is the evaluator's verdict.
type Decision struct {
	CanProceed   bool      `json:"can_proceed"`
	CanOverride  bool      `json:"can_override"`
	Blockers     []Blocker `json:"blockers"`
	RequireTests bool      `json:"require_tests,omitempty"`
}

// Evaluate applies the gating rules to units[index]: the previous unit must
// be completed, every depends_on sibling must be completed, and when anything
// blocks, allowOverride decides whether the caller may force it.
func Evaluate(units []Unit, index int, allowOverride bool) Decision {
	d := Decision{Blockers: []Blocker{}}
	if index < 0 || index >= len(units) {
		d.Blockers = append(d.Blockers, Blocker{ID: fmt.Sprint(index), Reason: ReasonOutOfRange})
		return d
	}

	seen := make(map[string]bool)
	if index > 0 {
		prev := units[index-1]
		if prev.Status != model.StatusCompleted {
			d.Blockers = append(d.Blockers, Blocker{ID: prev.ID, Title: prev.Title, Status: prev.Status, Reason: ReasonPrevious})
			seen[prev.ID] = true
		}
	}

	g := graph.Build(units)
	for _, dep := range g.BlockersOf(units[index].ID) {
		if seen[dep.ID] {
			continue
		}
		seen[dep.ID] = true
		reason := ReasonDependency
		if _, known := g.Node(dep.ID); !known {
			reason = ReasonUnknown
		}
		d.Blockers = append(d.Blockers, Blocker{ID: dep.ID, Title: dep.Title, Status: dep.Status, Reason: reason})
	}

	if len(d.Blockers) == 0 {
		d.CanProceed = true
		return d
	}
	d.CanOverride = allowOverride
	return d
}

// ReadyIndices returns the positions of unfinished units that may start now.
func ReadyIndices(units []Unit) []int {
	var out []int
	for i, u := range units {
		if u.Status.Terminal() {
			continue
		}
		if Evaluate(units, i, false).CanProceed {
			out = append(out, i)
		}
	}
	return out
}

// EpicUnits converts the epic's roadmap entries.
func EpicUnits(e *model.Epic) []Unit {
	units := make([]Unit, len(e.Roadmaps))
	for i, rm := range e.Roadmaps {
		units[i] = Unit{ID: rm.RoadmapID, Title: rm.Title, Status: rm.Status, DependsOn: rm.DependsOn}
	}
	return units
}

// ForEpic evaluates the roadmap at index using the epic's gating settings.
func ForEpic(e *model.Epic, index int) Decision {
	d := Evaluate(EpicUnits(e), index, e.Gating.AllowManualOverride)
	d.RequireTests = e.Gating.RequireTests
	return d
}

// RoadmapUnits converts the roadmap's plan refs; cross_plan_dependencies
// become depends_on edges keyed by plan slug.
func RoadmapUnits(r *model.Roadmap) []Unit {
	deps := make(map[string][]string)
	for _, d := range r.CrossPlanDependencies {
		deps[d.DependentSlug] = append(deps[d.DependentSlug], d.DependsOnSlug)
	}
	units := make([]Unit, len(r.PhaseDevPlanRefs))
	for i, ref := range r.PhaseDevPlanRefs {
		units[i] = Unit{ID: ref.Slug, Title: ref.Title, Status: ref.Status, DependsOn: deps[ref.Slug]}
	}
	return units
}

// ForRoadmap evaluates the plan at index within the roadmap.
func ForRoadmap(r *model.Roadmap, index int, allowOverride bool) Decision {
	return Evaluate(RoadmapUnits(r), index, allowOverride)
}
