package format

import (
	"bytes"
	"strings"
	"testing"

	"github.com/RamXX/plansync/internal/enforce"
	"github.com/RamXX/plansync/internal/graph"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/orchestrator"
)

func TestVisionsEmpty(t *testing.T) {
	var buf bytes.Buffer
	Visions(&buf, nil)
	if got := buf.String(); got != "No visions found.\n" {
		t.Errorf("got %q", got)
	}
}

func TestProblemsSummary(t *testing.T) {
	var buf bytes.Buffer
	Problems(&buf, &enforce.Report{Documents: 3, Problems: []enforce.Problem{
		{Kind: enforce.KindDrift, Path: "epics/e/EPIC.json", Message: "epic completion is 90, children give 50"},
	}})
	out := buf.String()
	if !strings.Contains(out, "[DRIFT] epics/e/EPIC.json: epic completion is 90") {
		t.Errorf("problem line missing: %q", out)
	}
	if !strings.Contains(out, "1 problem(s) found across 3 documents.") {
		t.Errorf("summary missing: %q", out)
	}
}

func TestPrimeContext(t *testing.T) {
	st := &orchestrator.EpicStatus{
		Epic: &model.Epic{
			Slug: "launch", Title: "Launch", Status: model.StatusInProgress, CompletionPercentage: 40,
			Roadmaps: []model.EpicRoadmap{
				{RoadmapID: "roadmap-0", Title: "Core", Status: model.StatusInProgress, CompletionPercentage: 80},
				{RoadmapID: "roadmap-1", Title: "UI", Status: model.StatusNotStarted, DependsOn: []string{"roadmap-0"}},
			},
		},
		Ready:   []string{"roadmap-0"},
		Blocked: []string{"roadmap-1"},
		Stats:   graph.Stats{Total: 2},
		Ledger: &model.Ledger{
			EpicSlug: "launch", RoadmapCount: 2,
			TokenBudget: model.LedgerBudget{Used: 90, Total: 100, CompactionThreshold: 0.8},
		},
		NeedsCompaction: true,
	}
	var buf bytes.Buffer
	PrimeContext(&buf, st)
	out := buf.String()
	for _, want := range []string{
		"# Epic Launch (launch)",
		"Progress: 40% | Status: in_progress | Roadmaps: 2 | In Progress: 1 | Completed: 0 | Blocked: 1",
		"- roadmap-1 UI (after: roadmap-0)",
		"- roadmap-0 Core (80%)",
		"Tokens: 90/100 (compaction needed)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
