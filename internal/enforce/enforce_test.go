package enforce

import (
	"context"
	"os"
	"testing"

	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/propagate"
	"github.com/RamXX/plansync/internal/registry"
	"github.com/RamXX/plansync/internal/store"
)

type tree struct {
	s        *store.Store
	reg      *registry.Registry
	p        *propagate.Propagator
	planPath string
}

func newTree(t *testing.T) tree {
	t.Helper()
	ctx := context.Background()
	s, err := store.Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New(s)
	if _, err := reg.CreateVision(ctx, store.NewVision("v", "Vision", "")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateEpic(ctx, &model.Epic{Slug: "e", Title: "Epic", VisionSlug: "v"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddRoadmap(ctx, "e", store.RoadmapSpec{Title: "Core"}); err != nil {
		t.Fatal(err)
	}
	e, err := s.ReadEpic("e")
	if err != nil {
		t.Fatal(err)
	}
	ph, err := store.ParsePhaseSpec("p1:t1,t2")
	if err != nil {
		t.Fatal(err)
	}
	plan, err := s.AddPlan(ctx, e.Roadmaps[0].Path, &model.Plan{Slug: "build", Title: "Build", Phases: []model.Phase{ph}})
	if err != nil {
		t.Fatal(err)
	}
	p := propagate.New(s)
	if _, err := p.TaskCompleted(ctx, "build", "p1", "t1"); err != nil {
		t.Fatal(err)
	}
	return tree{s: s, reg: reg, p: p, planPath: s.NewPlanPath(plan.Slug)}
}

func check(t *testing.T, tr tree) *Report {
	t.Helper()
	r, err := CheckTree(context.Background(), tr.s, tr.reg)
	if err != nil {
		t.Fatalf("CheckTree: %v", err)
	}
	return r
}

func hasKind(r *Report, kind string) bool {
	for _, p := range r.Problems {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

func TestCleanTree(t *testing.T) {
	r := check(t, newTree(t))
	if !r.OK() {
		t.Fatalf("expected clean tree, got %v", r.Problems)
	}
	// epic, roadmap, plan, vision
	if r.Documents != 4 {
		t.Errorf("documents = %d, want 4", r.Documents)
	}
}

func TestDriftIsReportedAndFixed(t *testing.T) {
	tr := newTree(t)
	ctx := context.Background()
	if _, err := tr.s.UpdateEpic(ctx, "e", func(e *model.Epic) error {
		e.CompletionPercentage = 90
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.s.UpdatePlan(ctx, tr.planPath, func(p *model.Plan) error {
		p.CompletionPercentage = 10
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	r := check(t, tr)
	if !hasKind(r, KindDrift) {
		t.Fatalf("expected drift, got %v", r.Problems)
	}
	for _, p := range r.Problems {
		if !p.Fixable() {
			t.Errorf("unexpected unfixable problem %s", p)
		}
	}

	n, err := Fix(ctx, tr.p, tr.reg, r)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if n == 0 {
		t.Error("Fix reported nothing fixed")
	}
	if r := check(t, tr); !r.OK() {
		t.Errorf("still dirty after fix: %v", r.Problems)
	}
	e, err := tr.s.ReadEpic("e")
	if err != nil {
		t.Fatal(err)
	}
	if e.CompletionPercentage != 50 {
		t.Errorf("epic completion = %d, want 50", e.CompletionPercentage)
	}
}

func TestDanglingAndCorruptReferences(t *testing.T) {
	tr := newTree(t)
	if err := os.Remove(tr.s.Resolve(tr.planPath)); err != nil {
		t.Fatal(err)
	}
	r := check(t, tr)
	if !hasKind(r, KindRef) {
		t.Errorf("missing plan not reported: %v", r.Problems)
	}

	e, err := tr.s.ReadEpic("e")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tr.s.Resolve(e.Roadmaps[0].Path), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	r = check(t, tr)
	if !hasKind(r, KindCorrupt) {
		t.Errorf("corrupt roadmap not reported: %v", r.Problems)
	}
}

func TestDependencyCycle(t *testing.T) {
	s, err := store.Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateEpic(context.Background(), &model.Epic{
		Slug:  "loop",
		Title: "Loop",
		Roadmaps: []model.EpicRoadmap{
			{RoadmapID: "roadmap-0", Status: model.StatusNotStarted, DependsOn: []string{"roadmap-1"}},
			{RoadmapID: "roadmap-1", Status: model.StatusNotStarted, DependsOn: []string{"roadmap-0"}},
		},
	}); err != nil {
		t.Fatal(err)
	}
	r, err := CheckTree(context.Background(), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !hasKind(r, KindCycle) {
		t.Fatalf("cycle not reported: %v", r.Problems)
	}
	for _, p := range r.Problems {
		if p.Fixable() {
			t.Errorf("cycle reported as fixable: %s", p)
		}
	}
}

func TestStaleRegistryEntry(t *testing.T) {
	tr := newTree(t)
	ctx := context.Background()

	// A second store has no registry attached, like an external writer.
	other, err := store.Open(tr.s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.UpdateVision(ctx, "v", func(v *model.Vision) error {
		v.Title = "Renamed"
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	r := check(t, tr)
	if !hasKind(r, KindRegistry) {
		t.Fatalf("stale registry not reported: %v", r.Problems)
	}
	if _, err := Fix(ctx, tr.p, tr.reg, r); err != nil {
		t.Fatal(err)
	}
	if r := check(t, tr); !r.OK() {
		t.Errorf("still dirty after rebuild: %v", r.Problems)
	}
}
