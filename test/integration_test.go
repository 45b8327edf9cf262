package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RamXX/plansync/internal/enforce"
	"github.com/RamXX/plansync/internal/lock"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/orchestrator"
	"github.com/RamXX/plansync/internal/propagate"
	"github.com/RamXX/plansync/internal/registry"
	"github.com/RamXX/plansync/internal/store"
)

// Full workflow: init -> vision -> epic -> roadmaps -> plans -> tasks ->
// ledger -> registry rebuild -> doctor. No mocks. Real documents on disk.

type world struct {
	s    *store.Store
	reg  *registry.Registry
	prop *propagate.Propagator
	orch *orchestrator.Orchestrator
}

func open(t *testing.T, dir string) world {
	t.Helper()
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reg := registry.New(s)
	prop := propagate.New(s)
	return world{s: s, reg: reg, prop: prop, orch: orchestrator.New(s, reg, prop)}
}

func addPlan(t *testing.T, w world, epicSlug, roadmapID, slug string, phases ...string) {
	t.Helper()
	e, err := w.s.ReadEpic(epicSlug)
	if err != nil {
		t.Fatalf("read epic: %v", err)
	}
	p := &model.Plan{Slug: slug, Title: slug}
	for _, raw := range phases {
		ph, err := store.ParsePhaseSpec(raw)
		if err != nil {
			t.Fatalf("phase %q: %v", raw, err)
		}
		p.Phases = append(p.Phases, ph)
	}
	path := e.Roadmaps[e.RoadmapIndex(roadmapID)].Path
	if _, err := w.s.AddPlan(context.Background(), path, p); err != nil {
		t.Fatalf("add plan %s: %v", slug, err)
	}
}

func TestFullWorkflow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// 1. Init.
	if _, err := store.Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	w := open(t, dir)

	// 2. Vision with a derived slug.
	v, err := w.reg.CreateVision(ctx, store.NewVision("", "Self-Serve Billing", "Let customers pay without us."))
	if err != nil {
		t.Fatalf("create vision: %v", err)
	}
	if v.Slug != "self-serve-billing" {
		t.Fatalf("slug = %q", v.Slug)
	}
	if _, err := w.reg.CreateVision(ctx, store.NewVision("self-serve-billing", "Again", "")); err == nil {
		t.Fatal("duplicate slug should be rejected")
	}

	// 3. Epic executing the vision.
	if err := w.s.CreateEpic(ctx, &model.Epic{
		Slug:        "billing",
		Title:       "Billing",
		VisionSlug:  v.Slug,
		TokenBudget: model.TokenBudget{Total: 1000, CompactionThreshold: 0.75},
	}); err != nil {
		t.Fatalf("create epic: %v", err)
	}
	if _, _, err := w.prop.SyncVision(ctx, v.Slug, "billing"); err != nil {
		t.Fatalf("link vision: %v", err)
	}

	// 4. Roadmaps: Invoices -> Payments, Reports depends on Invoices only.
	for _, spec := range []store.RoadmapSpec{
		{Title: "Invoices"},
		{Title: "Payments"},
		{Title: "Reports", DependsOn: []string{"roadmap-0"}},
	} {
		if _, err := w.s.AddRoadmap(ctx, "billing", spec); err != nil {
			t.Fatalf("add roadmap %s: %v", spec.Title, err)
		}
	}
	addPlan(t, w, "billing", "roadmap-0", "invoice-model", "schema:table,migration", "api:create,list")
	addPlan(t, w, "billing", "roadmap-1", "stripe", "integrate:checkout")
	addPlan(t, w, "billing", "roadmap-2", "exports", "csv:export")

	// 5. Start: roadmap-0 activates, nothing else.
	prog, err := w.orch.Start(ctx, "billing")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if prog.Activated != "roadmap-0" {
		t.Fatalf("activated = %q", prog.Activated)
	}

	// 6. Partial progress: 1 of 2 tasks in one of two phases.
	prog, err = w.orch.HandleTaskCompleted(ctx, "invoice-model", "schema", "table")
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if got := prog.Propagation.Plan.AfterPercentage; got != 25 {
		t.Errorf("plan completion = %d, want 25", got)
	}
	e, _ := w.s.ReadEpic("billing")
	// roadmap-0 is 25%, the others 0%: round(25/3) = 8.
	if e.CompletionPercentage != 8 {
		t.Errorf("epic completion = %d, want 8", e.CompletionPercentage)
	}
	if e.Status != model.StatusInProgress {
		t.Errorf("epic status = %s", e.Status)
	}

	// 7. Finish roadmap-0; the ledger advances and roadmap-1 starts.
	for _, step := range [][2]string{{"schema", "migration"}, {"api", "create"}, {"api", "list"}} {
		prog, err = w.orch.HandleTaskCompleted(ctx, "invoice-model", step[0], step[1])
		if err != nil {
			t.Fatalf("task %v: %v", step, err)
		}
	}
	if prog.RoadmapCompleted != "roadmap-0" || prog.Activated != "roadmap-1" {
		t.Fatalf("progression = completed %q activated %q", prog.RoadmapCompleted, prog.Activated)
	}

	// 8. Reports is gated on roadmap-1 being the previous roadmap.
	d, err := w.orch.CheckGatingRequirements(ctx, "billing", 2)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if d.CanProceed {
		t.Error("roadmap-2 should wait for roadmap-1")
	}

	// 9. Finish the rest.
	if _, err := w.orch.HandleTaskCompleted(ctx, "stripe", "integrate", "checkout"); err != nil {
		t.Fatalf("stripe: %v", err)
	}
	prog, err = w.orch.HandleTaskCompleted(ctx, "exports", "csv", "export")
	if err != nil {
		t.Fatalf("exports: %v", err)
	}
	if prog.Advance == nil || !prog.Advance.EpicCompleted {
		t.Fatalf("epic should be complete, advance = %+v", prog.Advance)
	}

	l, err := w.s.LoadLedger("billing")
	if err != nil || l == nil {
		t.Fatalf("ledger: %v", err)
	}
	if l.Status != model.StatusCompleted || len(l.CompletedRoadmaps) != 3 {
		t.Errorf("ledger = %s %v", l.Status, l.CompletedRoadmaps)
	}
	v, _ = w.s.ReadVision(v.Slug)
	if v.Status != model.VisionCompleted || v.Metadata.CompletionPercentage != 100 {
		t.Errorf("vision = %s %d%%", v.Status, v.Metadata.CompletionPercentage)
	}

	// 10. Registry survives deletion and is rebuilt from disk.
	if err := os.Remove(w.reg.Path()); err != nil {
		t.Fatalf("remove registry: %v", err)
	}
	entries, err := open(t, dir).reg.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != model.VisionCompleted {
		t.Errorf("rebuilt entries = %+v", entries)
	}

	// 11. Doctor finds nothing.
	report, err := enforce.CheckTree(ctx, w.s, w.reg)
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	for _, p := range report.Problems {
		t.Errorf("doctor: %s", p)
	}
}

func TestConcurrentAgentsKeepMeans(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if _, err := store.Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	w := open(t, dir)
	if err := w.s.CreateEpic(ctx, &model.Epic{Slug: "e", Title: "E"}); err != nil {
		t.Fatalf("epic: %v", err)
	}
	if _, err := w.s.AddRoadmap(ctx, "e", store.RoadmapSpec{Title: "All"}); err != nil {
		t.Fatalf("roadmap: %v", err)
	}
	const plans, tasks = 4, 3
	for i := 0; i < plans; i++ {
		addPlan(t, w, "e", "roadmap-0", fmt.Sprintf("p%d", i), "ph:t0,t1,t2")
	}

	// Each agent opens its own store over the same root, like separate processes.
	var wg sync.WaitGroup
	errs := make(chan error, plans*tasks)
	for i := 0; i < plans; i++ {
		agent := open(t, dir)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < tasks; j++ {
				if _, err := agent.prop.TaskCompleted(ctx, fmt.Sprintf("p%d", i), "ph", fmt.Sprintf("t%d", j)); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("agent: %v", err)
	}

	e, _ := w.s.ReadEpic("e")
	if e.CompletionPercentage != 100 || e.Status != model.StatusCompleted {
		t.Errorf("epic = %d%% %s, want 100%% completed", e.CompletionPercentage, e.Status)
	}
	rm, _ := w.s.ReadRoadmap(e.Roadmaps[0].Path)
	for _, ref := range rm.PhaseDevPlanRefs {
		if ref.CompletionPercentage != 100 {
			t.Errorf("plan ref %s = %d%%", ref.Slug, ref.CompletionPercentage)
		}
	}

	leftovers := 0
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && filepath.Ext(path) == lock.Suffix {
			leftovers++
		}
		return nil
	})
	if leftovers != 0 {
		t.Errorf("%d lease file(s) left behind", leftovers)
	}
}

func TestStaleLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if _, err := store.Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	w := open(t, dir)
	if err := w.s.CreateEpic(ctx, &model.Epic{Slug: "e", Title: "E"}); err != nil {
		t.Fatalf("epic: %v", err)
	}

	// A crashed writer left a lease behind long ago.
	lease := fmt.Sprintf(`{"pid":%d,"acquired_at":%q,"target":"EPIC.json"}`,
		os.Getpid(), time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano))
	if err := os.WriteFile(lock.LockPath(w.s.EpicPath("e")), []byte(lease), 0o644); err != nil {
		t.Fatalf("write lease: %v", err)
	}

	if _, err := w.s.UpdateEpic(ctx, "e", func(e *model.Epic) error {
		e.Title = "Renamed"
		return nil
	}); err != nil {
		t.Fatalf("update over stale lease: %v", err)
	}
	e, _ := w.s.ReadEpic("e")
	if e.Title != "Renamed" {
		t.Errorf("title = %q", e.Title)
	}
}
