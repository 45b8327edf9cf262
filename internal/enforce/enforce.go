// Package enforce checks a plansync tree against the hierarchy invariants
// and repairs what can be re-derived.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/RamXX/plansync/internal/gating"
	"github.com/RamXX/plansync/internal/graph"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/propagate"
	"github.com/RamXX/plansync/internal/registry"
	"github.com/RamXX/plansync/internal/store"
)

// Problem kinds.
const (
	KindValid    = "VALID"    // document breaks its own rules
	KindCorrupt  = "CORRUPT"  // document does not parse
	KindRef      = "REF"      // reference to a missing document
	KindDrift    = "DRIFT"    // aggregate disagrees with its children
	KindCycle    = "CYCLE"    // depends_on loop
	KindRegistry = "REGISTRY" // registry entry disagrees with its vision
)

// Problem is one finding.
type Problem struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Epic    string `json:"epic,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("[%s] %s: %s", p.Kind, p.Path, p.Message)
}

// Fixable reports whether Fix can repair the problem by re-deriving it.
func (p Problem) Fixable() bool {
	return p.Kind == KindDrift || p.Kind == KindRegistry
}

// Report collects every problem found by CheckTree.
type Report struct {
	Documents int       `json:"documents"`
	Problems  []Problem `json:"problems"`
}

// OK reports whether the tree is clean.
func (r *Report) OK() bool { return len(r.Problems) == 0 }

func (r *Report) add(kind, path, epic, format string, args ...any) {
	r.Problems = append(r.Problems, Problem{Kind: kind, Path: path, Epic: epic, Message: fmt.Sprintf(format, args...)})
}

// checker carries one run's state.
type checker struct {
	s      *store.Store
	report *Report
}

// CheckTree walks every epic with its roadmaps and plans, every vision, and
// the registry when reg is non-nil.
func CheckTree(ctx context.Context, s *store.Store, reg *registry.Registry) (*Report, error) {
	c := &checker{s: s, report: &Report{Problems: []Problem{}}}
	epics, err := s.ListEpicSlugs()
	if err != nil {
		return nil, err
	}
	for _, slug := range epics {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.epic(slug); err != nil {
			return nil, err
		}
	}
	if reg != nil {
		if err := c.registry(ctx, reg); err != nil {
			return nil, err
		}
	}
	return c.report, nil
}

// read classifies a Read* error; ok is false when the document could not be
// checked. Errors other than absence and corruption are returned.
func (c *checker) read(err error, path, epic, what string) (ok bool, fatal error) {
	switch {
	case err == nil:
		c.report.Documents++
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		c.report.add(KindRef, path, epic, "%s does not exist", what)
	case store.IsCorrupt(err):
		c.report.add(KindCorrupt, path, epic, "%v", errors.Unwrap(err))
	default:
		return false, err
	}
	return false, nil
}

func (c *checker) validate(path, epic string, problems []string) {
	for _, p := range problems {
		c.report.add(KindValid, path, epic, "%s", p)
	}
}

func (c *checker) drift(path, epic, what string, storedPct, wantPct int, storedStatus, wantStatus model.Status) {
	if storedPct != wantPct {
		c.report.add(KindDrift, path, epic, "%s completion is %d, children give %d", what, storedPct, wantPct)
	}
	if storedStatus != wantStatus {
		c.report.add(KindDrift, path, epic, "%s status is %s, children give %s", what, storedStatus, wantStatus)
	}
}

func (c *checker) cycles(path, epic string, units []gating.Unit) {
	for _, cycle := range graph.Build(units).DetectCycles() {
		c.report.add(KindCycle, path, epic, "dependency cycle %s", strings.Join(cycle, " -> "))
	}
}

func (c *checker) epic(slug string) error {
	path := c.s.Rel(c.s.EpicPath(slug))
	e, err := c.s.ReadEpic(slug)
	if ok, err := c.read(err, path, slug, "epic"); !ok {
		return err
	}
	c.validate(path, slug, e.Validate())
	c.cycles(path, slug, gating.EpicUnits(e))

	for i := range e.Roadmaps {
		entry := &e.Roadmaps[i]
		if entry.Path == "" {
			continue
		}
		rm, err := c.roadmap(slug, entry)
		if err != nil {
			return err
		}
		if rm != nil && len(rm.PhaseDevPlanRefs) > 0 {
			what := fmt.Sprintf("roadmap entry %s", entry.RoadmapID)
			c.drift(path, slug, what, entry.CompletionPercentage, rm.CompletionPercentage, entry.Status, rm.Status)
		}
	}

	want := *e
	want.Roadmaps = append([]model.EpicRoadmap(nil), e.Roadmaps...)
	model.EpicProgress(&want)
	c.drift(path, slug, "epic", e.CompletionPercentage, want.CompletionPercentage, e.Status, want.Status)

	if e.VisionSlug != "" {
		return c.vision(e)
	}
	return nil
}

func (c *checker) roadmap(epic string, entry *model.EpicRoadmap) (*model.Roadmap, error) {
	path := entry.Path
	rm, err := c.s.ReadRoadmap(path)
	if ok, err := c.read(err, path, epic, "roadmap "+entry.RoadmapID); !ok {
		return nil, err
	}
	c.validate(path, epic, rm.Validate())
	c.cycles(path, epic, gating.RoadmapUnits(rm))

	for i := range rm.PhaseDevPlanRefs {
		ref := &rm.PhaseDevPlanRefs[i]
		plan, err := c.s.ReadPlan(ref.Path)
		if ok, err := c.read(err, ref.Path, epic, "plan "+ref.Slug); !ok {
			if err != nil {
				return nil, err
			}
			continue
		}
		c.validate(ref.Path, epic, plan.Validate())

		pct, status := plan.CompletionPercentage, plan.Status
		model.PlanProgress(plan)
		c.drift(ref.Path, epic, "plan", pct, plan.CompletionPercentage, status, plan.Status)
		c.drift(path, epic, "plan ref "+ref.Slug, ref.CompletionPercentage, plan.CompletionPercentage, ref.Status, plan.Status)
	}

	want := *rm
	want.PhaseDevPlanRefs = append([]model.PlanRef(nil), rm.PhaseDevPlanRefs...)
	model.RoadmapProgress(&want)
	c.drift(path, epic, "roadmap", rm.CompletionPercentage, want.CompletionPercentage, rm.Status, want.Status)
	return rm, nil
}

func (c *checker) vision(e *model.Epic) error {
	path := c.s.Rel(c.s.VisionPath(e.VisionSlug))
	v, err := c.s.ReadVision(e.VisionSlug)
	if ok, err := c.read(err, path, e.Slug, "vision "+e.VisionSlug); !ok {
		return err
	}
	c.validate(path, e.Slug, v.Validate())
	if v.Metadata.EpicSlug != "" && v.Metadata.EpicSlug != e.Slug {
		return nil
	}
	if v.Metadata.CompletionPercentage != e.CompletionPercentage {
		c.report.add(KindDrift, path, e.Slug, "vision completion is %d, epic %s is %d",
			v.Metadata.CompletionPercentage, e.Slug, e.CompletionPercentage)
	}
	if want, ok := model.VisionStatusFor(e.Status); ok && v.Status != want {
		c.report.add(KindDrift, path, e.Slug, "vision status is %s, epic %s gives %s", v.Status, e.Slug, want)
	}
	return nil
}

func (c *checker) registry(ctx context.Context, reg *registry.Registry) error {
	f, err := reg.Load(ctx)
	if err != nil {
		return err
	}
	path := c.s.Rel(reg.Path())
	slugs, err := c.s.ListVisionSlugs()
	if err != nil {
		return err
	}
	onDisk := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		v, err := c.s.LoadVision(slug)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		onDisk[slug] = true
		entry, ok := f.Visions[slug]
		switch {
		case !ok:
			c.report.add(KindRegistry, path, "", "vision %s is not registered", slug)
		case !sameEntry(entry, model.EntryFor(v)):
			c.report.add(KindRegistry, path, "", "entry for %s is stale", slug)
		}
	}
	stray := make([]string, 0)
	for slug := range f.Visions {
		if !onDisk[slug] {
			stray = append(stray, slug)
		}
	}
	sort.Strings(stray)
	for _, slug := range stray {
		c.report.add(KindRegistry, path, "", "entry %s has no vision document", slug)
	}
	return nil
}

func sameEntry(a, b model.RegistryEntry) bool {
	return a.Slug == b.Slug && a.Title == b.Title && a.Status == b.Status &&
		a.CompletionPercentage == b.CompletionPercentage && a.Updated.Equal(b.Updated)
}

// Fix re-derives every epic with drift bottom-up and rebuilds the registry
// when it disagrees with the visions. It returns how many problems were
// addressed; the caller re-checks to confirm.
func Fix(ctx context.Context, p *propagate.Propagator, reg *registry.Registry, report *Report) (int, error) {
	epics := make(map[string]bool)
	fixed := 0
	rebuild := false
	for _, pr := range report.Problems {
		switch {
		case pr.Kind == KindDrift && pr.Epic != "":
			epics[pr.Epic] = true
			fixed++
		case pr.Kind == KindRegistry:
			rebuild = true
			fixed++
		}
	}
	slugs := make([]string, 0, len(epics))
	for slug := range epics {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	for _, slug := range slugs {
		if _, err := p.SyncAll(ctx, slug); err != nil {
			return fixed, fmt.Errorf("sync epic %s: %w", slug, err)
		}
	}
	if rebuild && reg != nil {
		if _, err := reg.Rebuild(ctx); err != nil {
			return fixed, fmt.Errorf("rebuild registry: %w", err)
		}
	}
	return fixed, nil
}
