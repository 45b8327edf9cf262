package model

import (
	"fmt"
	"regexp"
	"strings"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a lowercase kebab-case slug.
func ValidSlug(s string) bool { return slugRe.MatchString(s) }

// Validate returns every rule the vision violates. An empty result means valid.
func (v *Vision) Validate() []string {
	var problems []string
	problems = append(problems, checkSlugTitle("vision", v.Slug, v.Title)...)
	if !v.Status.Valid() {
		problems = append(problems, fmt.Sprintf("invalid status %q", v.Status))
	}
	for i, o := range v.OKRs {
		if strings.TrimSpace(o.Objective) == "" {
			problems = append(problems, fmt.Sprintf("okrs[%d]: objective is required", i))
		}
		if len(o.KeyResults) == 0 {
			problems = append(problems, fmt.Sprintf("okrs[%d]: at least one key result is required", i))
		}
	}
	problems = append(problems, checkPercentage("metadata.completion_percentage", v.Metadata.CompletionPercentage)...)
	return problems
}

// Validate returns every rule the epic violates.
func (e *Epic) Validate() []string {
	var problems []string
	problems = append(problems, checkSlugTitle("epic", e.Slug, e.Title)...)
	if !e.Status.Valid() {
		problems = append(problems, fmt.Sprintf("invalid status %q", e.Status))
	}
	problems = append(problems, checkPercentage("completion_percentage", e.CompletionPercentage)...)
	seen := make(map[string]bool, len(e.Roadmaps))
	for i, rm := range e.Roadmaps {
		if rm.RoadmapID == "" {
			problems = append(problems, fmt.Sprintf("roadmaps[%d]: roadmap_id is required", i))
			continue
		}
		if seen[rm.RoadmapID] {
			problems = append(problems, fmt.Sprintf("roadmaps[%d]: duplicate roadmap_id %q", i, rm.RoadmapID))
		}
		seen[rm.RoadmapID] = true
		if !rm.Status.Valid() {
			problems = append(problems, fmt.Sprintf("roadmaps[%d]: invalid status %q", i, rm.Status))
		}
		problems = append(problems, checkPercentage(fmt.Sprintf("roadmaps[%d].completion_percentage", i), rm.CompletionPercentage)...)
	}
	for i, rm := range e.Roadmaps {
		for _, dep := range rm.DependsOn {
			if dep == rm.RoadmapID {
				problems = append(problems, fmt.Sprintf("roadmaps[%d]: %s depends on itself", i, dep))
			} else if !seen[dep] {
				problems = append(problems, fmt.Sprintf("roadmaps[%d]: depends_on references unknown roadmap %q", i, dep))
			}
		}
	}
	if b := e.TokenBudget; b.CompactionThreshold < 0 || b.CompactionThreshold > 1 {
		problems = append(problems, fmt.Sprintf("token_budget.compaction_threshold must be within [0,1], got %v", b.CompactionThreshold))
	}
	return problems
}

// Validate returns every rule the roadmap violates.
func (r *Roadmap) Validate() []string {
	var problems []string
	problems = append(problems, checkSlugTitle("roadmap", r.Slug, r.Title)...)
	if r.RoadmapID == "" {
		problems = append(problems, "roadmap_id is required")
	}
	if !r.Status.Valid() {
		problems = append(problems, fmt.Sprintf("invalid status %q", r.Status))
	}
	problems = append(problems, checkPercentage("completion_percentage", r.CompletionPercentage)...)
	seen := make(map[string]bool, len(r.PhaseDevPlanRefs))
	for i, ref := range r.PhaseDevPlanRefs {
		if ref.Slug == "" {
			problems = append(problems, fmt.Sprintf("phase_dev_plan_refs[%d]: slug is required", i))
			continue
		}
		if seen[ref.Slug] {
			problems = append(problems, fmt.Sprintf("phase_dev_plan_refs[%d]: duplicate slug %q", i, ref.Slug))
		}
		seen[ref.Slug] = true
		problems = append(problems, checkPercentage(fmt.Sprintf("phase_dev_plan_refs[%d].completion_percentage", i), ref.CompletionPercentage)...)
	}
	for i, d := range r.CrossPlanDependencies {
		if !seen[d.DependentSlug] || !seen[d.DependsOnSlug] {
			problems = append(problems, fmt.Sprintf("cross_plan_dependencies[%d]: %s -> %s references an unknown plan", i, d.DependentSlug, d.DependsOnSlug))
		}
	}
	return problems
}

// Validate returns every rule the plan violates.
func (p *Plan) Validate() []string {
	var problems []string
	if p.Slug == "" {
		problems = append(problems, "plan slug is required")
	}
	if !p.Status.Valid() {
		problems = append(problems, fmt.Sprintf("invalid status %q", p.Status))
	}
	problems = append(problems, checkPercentage("completion_percentage", p.CompletionPercentage)...)
	phases := make(map[string]bool, len(p.Phases))
	for i, ph := range p.Phases {
		if ph.ID == "" {
			problems = append(problems, fmt.Sprintf("phases[%d]: id is required", i))
		} else if phases[ph.ID] {
			problems = append(problems, fmt.Sprintf("phases[%d]: duplicate id %q", i, ph.ID))
		}
		phases[ph.ID] = true
		tasks := make(map[string]bool, len(ph.Tasks))
		for j, t := range ph.Tasks {
			if t.ID == "" {
				problems = append(problems, fmt.Sprintf("phases[%d].tasks[%d]: id is required", i, j))
			} else if tasks[t.ID] {
				problems = append(problems, fmt.Sprintf("phases[%d].tasks[%d]: duplicate id %q", i, j, t.ID))
			}
			tasks[t.ID] = true
		}
	}
	if pc := p.ParentContext; pc != nil && pc.Type == ParentRoadmap && pc.Path == "" {
		problems = append(problems, "parent_context.path is required for roadmap parents")
	}
	return problems
}

func checkSlugTitle(kind, slug, title string) []string {
	var problems []string
	if slug == "" {
		problems = append(problems, kind+" slug is required")
	} else if !ValidSlug(slug) {
		problems = append(problems, fmt.Sprintf("%s slug %q must be lowercase letters, digits and dashes", kind, slug))
	}
	if strings.TrimSpace(title) == "" {
		problems = append(problems, kind+" title is required")
	}
	return problems
}

func checkPercentage(field string, p int) []string {
	if p < 0 || p > 100 {
		return []string{fmt.Sprintf("%s must be within [0,100], got %d", field, p)}
	}
	return nil
}
