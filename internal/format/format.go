package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/RamXX/plansync/internal/enforce"
	"github.com/RamXX/plansync/internal/gating"
	"github.com/RamXX/plansync/internal/lock"
	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/orchestrator"
	"github.com/RamXX/plansync/internal/propagate"
	"github.com/RamXX/plansync/internal/ui"
)

const barWidth = 20

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Visions renders one line per registry entry.
// Format: ICON SLUG STATUS BAR - TITLE
func Visions(w io.Writer, entries []model.RegistryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No visions found.")
		return
	}
	width := 0
	for _, e := range entries {
		width = max(width, len(e.Slug))
	}
	for _, e := range entries {
		status := string(e.Status)
		fmt.Fprintf(w, "%s %-*s %-11s %s - %s\n",
			ui.RenderStatusIcon(status), width, e.Slug, ui.RenderStatus(status),
			ui.RenderProgress(e.CompletionPercentage, barWidth), truncate(e.Title, 60))
	}
	fmt.Fprintf(w, "\n%d vision(s)\n", len(entries))
}

// Vision renders one vision document.
func Vision(w io.Writer, v *model.Vision) {
	status := string(v.Status)
	fmt.Fprintf(w, "%s %s %s %s [%s]\n",
		ui.RenderStatusIcon(status), v.Slug, ui.RenderMuted("."), ui.RenderBold(v.Title), ui.RenderStatus(status))
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent("Progress:"), ui.RenderProgress(v.Metadata.CompletionPercentage, barWidth))
	if v.Metadata.EpicSlug != "" {
		fmt.Fprintf(w, "%s %s\n", ui.RenderAccent("Epic:"), v.Metadata.EpicSlug)
	}
	fmt.Fprintf(w, "%s %s %s %s %s\n",
		ui.RenderAccent("Created:"), v.Created.Format("2006-01-02 15:04"),
		ui.RenderMuted("."),
		ui.RenderAccent("Updated:"), v.Updated.Format("2006-01-02 15:04"))

	for _, okr := range v.OKRs {
		fmt.Fprintf(w, "%s %s\n", ui.RenderAccent("Objective:"), okr.Objective)
		for _, kr := range okr.KeyResults {
			fmt.Fprintf(w, "  - %s\n", kr)
		}
	}
	if len(v.ExecutionPlan.Roadmaps) > 0 {
		fmt.Fprintln(w)
		for _, rm := range v.ExecutionPlan.Roadmaps {
			fmt.Fprintf(w, "%s %-12s %s %s\n", ui.RenderStatusIcon(string(rm.Status)), rm.RoadmapID,
				ui.RenderProgress(rm.CompletionPercentage, barWidth), rm.Title)
		}
	}
	if v.Description != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, ui.RenderMarkdown(v.Description))
	}
}

// EpicTree renders the epic with its roadmaps and, where loaded, their
// plans. roadmaps is keyed by roadmap id; missing entries are shown bare.
func EpicTree(w io.Writer, e *model.Epic, roadmaps map[string]*model.Roadmap) {
	fmt.Fprintf(w, "%s %s %s %s\n", ui.RenderStatusIcon(string(e.Status)), ui.RenderBold(e.Title),
		ui.RenderMuted("("+e.Slug+")"), ui.RenderProgress(e.CompletionPercentage, barWidth))
	for i, entry := range e.Roadmaps {
		last := i == len(e.Roadmaps)-1
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}
		line := fmt.Sprintf("%s %s %s", ui.RenderStatusIcon(string(entry.Status)), entry.RoadmapID, entry.Title)
		if len(entry.DependsOn) > 0 {
			line += ui.RenderMuted(" (after " + strings.Join(entry.DependsOn, ", ") + ")")
		}
		fmt.Fprintf(w, "%s%s %s\n", branch, line, ui.RenderProgress(entry.CompletionPercentage, barWidth/2))

		rm := roadmaps[entry.RoadmapID]
		if rm == nil {
			continue
		}
		for j, ref := range rm.PhaseDevPlanRefs {
			sub := "├── "
			if j == len(rm.PhaseDevPlanRefs)-1 {
				sub = "└── "
			}
			fmt.Fprintf(w, "%s%s%s %s %s\n", indent, sub, ui.RenderStatusIcon(string(ref.Status)), ref.Slug,
				ui.RenderProgress(ref.CompletionPercentage, barWidth/2))
		}
	}
}

// EpicStatus renders the epic summary with its ledger.
func EpicStatus(w io.Writer, st *orchestrator.EpicStatus) {
	e := st.Epic
	fmt.Fprintf(w, "%s %s [%s] %s\n", ui.RenderStatusIcon(string(e.Status)), ui.RenderBold(e.Title),
		ui.RenderStatus(string(e.Status)), ui.RenderProgress(e.CompletionPercentage, barWidth))
	fmt.Fprintf(w, "%s %d total, ready: %s, blocked: %s\n", ui.RenderAccent("Roadmaps:"),
		st.Stats.Total, list(st.Ready), list(st.Blocked))
	if l := st.Ledger; l != nil {
		current := ""
		if l.CurrentRoadmapIndex < len(e.Roadmaps) {
			current = e.Roadmaps[l.CurrentRoadmapIndex].RoadmapID
		}
		fmt.Fprintf(w, "%s %s, current %d %s, active %s, completed %s\n", ui.RenderAccent("Ledger:"),
			ui.RenderStatus(string(l.Status)), l.CurrentRoadmapIndex, ui.RenderMuted(current),
			list(l.ActiveRoadmaps), list(l.CompletedRoadmaps))
		Budget(w, l.TokenBudget, st.NeedsCompaction)
	}
}

// Budget renders a token budget line.
func Budget(w io.Writer, b model.LedgerBudget, needsCompaction bool) {
	line := fmt.Sprintf("%s %d/%d (threshold %.0f%%)", ui.RenderAccent("Tokens:"), b.Used, b.Total, b.CompactionThreshold*100)
	if needsCompaction {
		line += " " + ui.RenderVerdict(false, "", "compaction needed")
	}
	fmt.Fprintln(w, line)
}

func list(ids []string) string {
	if len(ids) == 0 {
		return ui.RenderMuted("none")
	}
	return strings.Join(ids, ", ")
}

// Ledger renders the ledger and its checkpoints, newest last.
func Ledger(w io.Writer, l *model.Ledger) {
	fmt.Fprintf(w, "%s %s [%s] roadmap %d/%d\n", ui.RenderStatusIcon(string(l.Status)), ui.RenderBold(l.EpicSlug),
		ui.RenderStatus(string(l.Status)), min(l.CurrentRoadmapIndex+1, l.RoadmapCount), l.RoadmapCount)
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent("Active:"), list(l.ActiveRoadmaps))
	fmt.Fprintf(w, "%s %s\n", ui.RenderAccent("Completed:"), list(l.CompletedRoadmaps))
	for _, f := range l.FailedRoadmaps {
		fmt.Fprintf(w, "%s %s %s\n", ui.RenderVerdict(false, "", "Failed:"), f.RoadmapID, ui.RenderMuted(f.Reason))
	}
	Budget(w, l.TokenBudget, orchestrator.NeedsCompaction(l.TokenBudget))
	if l.CompletedAt != nil {
		fmt.Fprintf(w, "%s %s (%dms)\n", ui.RenderAccent("Completed at:"), l.CompletedAt.Format("2006-01-02 15:04"), l.TotalDurationMs)
	}
	if len(l.Checkpoints) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, cp := range l.Checkpoints {
		Checkpoint(w, cp)
	}
}

// Checkpoint renders one checkpoint line.
func Checkpoint(w io.Writer, cp model.Checkpoint) {
	fmt.Fprintf(w, "%s %-16s %s %s\n", ui.RenderMuted(cp.CreatedAt.Format("2006-01-02 15:04:05")),
		cp.Kind, cp.RoadmapID, cp.Message)
}

// Decision renders a gating verdict.
func Decision(w io.Writer, id string, d gating.Decision) {
	fmt.Fprintf(w, "%s %s\n", ui.RenderVerdict(d.CanProceed, "ready", "blocked"), id)
	for _, b := range d.Blockers {
		fmt.Fprintf(w, "  - %s\n", b)
	}
	if !d.CanProceed && d.CanOverride {
		fmt.Fprintln(w, ui.RenderMuted("  manual override allowed"))
	}
	if d.RequireTests {
		fmt.Fprintln(w, ui.RenderMuted("  tests required before completion"))
	}
}

// Propagation renders the before/after of every level reached.
func Propagation(w io.Writer, res *propagate.Result) {
	if res == nil {
		return
	}
	for _, c := range []*propagate.LevelChange{res.Plan, res.Roadmap, res.Epic, res.Vision} {
		if c == nil {
			continue
		}
		arrow := ui.RenderMuted("=")
		if c.Changed() {
			arrow = ui.RenderAccent("→")
		}
		fmt.Fprintf(w, "%-8s %-40s %3d%% %s %3d%%  %s %s %s\n", c.Level, truncate(c.Key, 40),
			c.BeforePercentage, arrow, c.AfterPercentage,
			ui.RenderStatus(c.BeforeStatus), arrow, ui.RenderStatus(c.AfterStatus))
	}
}

// Progression renders an orchestrator event outcome.
func Progression(w io.Writer, p *orchestrator.Progression) {
	Propagation(w, p.Propagation)
	if p.RoadmapCompleted != "" {
		fmt.Fprintf(w, "%s roadmap %s completed\n", ui.RenderStatusIcon("completed"), p.RoadmapCompleted)
	}
	if p.Advance != nil && p.Advance.EpicCompleted {
		fmt.Fprintf(w, "%s epic completed\n", ui.RenderStatusIcon("completed"))
	}
	if p.Activated != "" {
		fmt.Fprintf(w, "%s roadmap %s started\n", ui.RenderStatusIcon("in_progress"), p.Activated)
	}
	if p.Gate != nil && !p.Gate.CanProceed && p.Ledger != nil {
		fmt.Fprintln(w, ui.RenderVerdict(false, "", "next roadmap is gated:"))
		for _, b := range p.Gate.Blockers {
			fmt.Fprintf(w, "  - %s\n", b)
		}
	}
}

// Problems renders a consistency report.
func Problems(w io.Writer, r *enforce.Report) {
	for _, p := range r.Problems {
		fmt.Fprintln(w, p)
	}
	if r.OK() {
		fmt.Fprintf(w, "All %d documents passed validation.\n", r.Documents)
		return
	}
	fmt.Fprintf(w, "\n%d problem(s) found across %d documents.\n", len(r.Problems), r.Documents)
}

// Leases renders lock files with their staleness.
func Leases(w io.Writer, root string, leases []lock.LeaseInfo) {
	if len(leases) == 0 {
		fmt.Fprintln(w, "No locks held.")
		return
	}
	for _, l := range leases {
		path := strings.TrimPrefix(strings.TrimPrefix(l.Path, root), "/")
		state := ui.RenderVerdict(true, "live", "")
		if l.Stale {
			state = ui.RenderVerdict(false, "", "stale: "+l.Reason)
		}
		owner := ""
		if l.Lease != nil {
			owner = fmt.Sprintf("pid %d since %s", l.Lease.PID, l.Lease.AcquiredAt.Format("15:04:05"))
		}
		fmt.Fprintf(w, "%s %s %s\n", path, ui.RenderMuted(owner), state)
	}
}
