package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/orchestrator"
)

// PrimeContext writes a plain markdown summary of an epic for agent context
// injection. It never emits color codes.
func PrimeContext(w io.Writer, st *orchestrator.EpicStatus) {
	e := st.Epic
	fmt.Fprintf(w, "# Epic %s (%s)\n\n", e.Title, e.Slug)

	counts := make(map[model.Status]int)
	for _, rm := range e.Roadmaps {
		counts[rm.Status]++
	}
	fmt.Fprintf(w, "Progress: %d%% | Status: %s | Roadmaps: %d | In Progress: %d | Completed: %d | Blocked: %d\n\n",
		e.CompletionPercentage, e.Status, len(e.Roadmaps),
		counts[model.StatusInProgress], counts[model.StatusCompleted], len(st.Blocked))

	byID := make(map[string]model.EpicRoadmap, len(e.Roadmaps))
	for _, rm := range e.Roadmaps {
		byID[rm.RoadmapID] = rm
	}
	if len(st.Ready) > 0 {
		fmt.Fprintln(w, "## Ready")
		for _, id := range st.Ready {
			fmt.Fprintf(w, "- %s %s (%d%%)\n", id, byID[id].Title, byID[id].CompletionPercentage)
		}
		fmt.Fprintln(w)
	}
	if len(st.Blocked) > 0 {
		fmt.Fprintln(w, "## Blocked")
		for _, id := range st.Blocked {
			fmt.Fprintf(w, "- %s %s (after: %s)\n", id, byID[id].Title, strings.Join(byID[id].DependsOn, ", "))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "## In Progress")
	found := false
	for _, rm := range e.Roadmaps {
		if rm.Status == model.StatusInProgress {
			fmt.Fprintf(w, "- %s %s (%d%%)\n", rm.RoadmapID, rm.Title, rm.CompletionPercentage)
			found = true
		}
	}
	if !found {
		fmt.Fprintln(w, "(none)")
	}

	if l := st.Ledger; l != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "## Ledger")
		fmt.Fprintf(w, "Current roadmap index: %d of %d\n", l.CurrentRoadmapIndex, l.RoadmapCount)
		fmt.Fprintf(w, "Tokens: %d/%d", l.TokenBudget.Used, l.TokenBudget.Total)
		if st.NeedsCompaction {
			fmt.Fprint(w, " (compaction needed)")
		}
		fmt.Fprintln(w)
		if n := len(l.Checkpoints); n > 0 {
			cp := l.Checkpoints[n-1]
			fmt.Fprintf(w, "Last checkpoint: %s %s %s\n", cp.Kind, cp.RoadmapID, cp.Message)
		}
	}
}
