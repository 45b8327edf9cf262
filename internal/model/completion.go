package model

import "math"

// Progress is the part of a child document a parent aggregates over.
type Progress struct {
	Status               Status
	CompletionPercentage int
}

// ClampPercentage forces p into [0,100].
func ClampPercentage(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// MeanPercentage is the rounded arithmetic mean of the children's percentages.
// An empty list yields 0.
func MeanPercentage(children []Progress) int {
	if len(children) == 0 {
		return 0
	}
	sum := 0
	for _, c := range children {
		sum += ClampPercentage(c.CompletionPercentage)
	}
	return ClampPercentage(int(math.Round(float64(sum) / float64(len(children)))))
}

// RatioPercentage returns round(100 * done / total); total 0 yields 0.
func RatioPercentage(done, total int) int {
	if total <= 0 {
		return 0
	}
	return ClampPercentage(int(math.Round(100 * float64(done) / float64(total))))
}

// DeriveStatus applies the parent-status rule: completed iff every child is
// completed, failed if any child failed, in_progress once any child has
// started, otherwise the parent's pre-start status. A parent with no children
// keeps its current status.
func DeriveStatus(current Status, children []Progress) Status {
	if len(children) == 0 {
		return current
	}
	allDone := true
	started := false
	for _, c := range children {
		if c.Status == StatusFailed {
			return StatusFailed
		}
		if c.Status != StatusCompleted {
			allDone = false
		}
		if c.CompletionPercentage > 0 || c.Status == StatusInProgress || c.Status == StatusCompleted {
			started = true
		}
	}
	switch {
	case allDone:
		return StatusCompleted
	case started:
		return StatusInProgress
	case current.PreStart():
		if current == "" {
			return StatusNotStarted
		}
		return current
	case current == StatusInProgress || current == StatusBlocked:
		return current
	default:
		return StatusNotStarted
	}
}

// PhaseProgress recomputes a phase's percentage and status from its tasks.
func PhaseProgress(ph *Phase) {
	if len(ph.Tasks) == 0 {
		return
	}
	done := 0
	children := make([]Progress, len(ph.Tasks))
	for i, t := range ph.Tasks {
		pct := 0
		if t.Completed || t.Status == StatusCompleted {
			done++
			pct = 100
		}
		st := t.Status
		if t.Completed {
			st = StatusCompleted
		}
		children[i] = Progress{Status: st, CompletionPercentage: pct}
	}
	ph.CompletionPercentage = RatioPercentage(done, len(ph.Tasks))
	ph.Status = DeriveStatus(ph.Status, children)
}

// PlanProgress recomputes every phase and then the plan itself. The plan
// percentage is the mean of phase percentages, not task-weighted.
func PlanProgress(p *Plan) {
	children := make([]Progress, len(p.Phases))
	for i := range p.Phases {
		PhaseProgress(&p.Phases[i])
		children[i] = Progress{Status: p.Phases[i].Status, CompletionPercentage: p.Phases[i].CompletionPercentage}
	}
	if len(children) == 0 {
		return
	}
	p.CompletionPercentage = MeanPercentage(children)
	p.Status = DeriveStatus(p.Status, children)
}

// RoadmapProgress recomputes a roadmap from its plan refs.
func RoadmapProgress(r *Roadmap) {
	if len(r.PhaseDevPlanRefs) == 0 {
		return
	}
	children := make([]Progress, len(r.PhaseDevPlanRefs))
	for i, ref := range r.PhaseDevPlanRefs {
		children[i] = Progress{Status: ref.Status, CompletionPercentage: ref.CompletionPercentage}
	}
	r.CompletionPercentage = MeanPercentage(children)
	r.Status = DeriveStatus(r.Status, children)
}

// EpicProgress recomputes an epic from its roadmap entries.
func EpicProgress(e *Epic) {
	if len(e.Roadmaps) == 0 {
		return
	}
	e.CompletionPercentage = CalculateEpicCompletion(e)
	children := make([]Progress, len(e.Roadmaps))
	for i, rm := range e.Roadmaps {
		children[i] = Progress{Status: rm.Status, CompletionPercentage: rm.CompletionPercentage}
	}
	e.Status = DeriveStatus(e.Status, children)
}

// CalculateEpicCompletion is the rounded mean of the epic's roadmap percentages.
func CalculateEpicCompletion(e *Epic) int {
	children := make([]Progress, len(e.Roadmaps))
	for i, rm := range e.Roadmaps {
		children[i] = Progress{Status: rm.Status, CompletionPercentage: rm.CompletionPercentage}
	}
	return MeanPercentage(children)
}
