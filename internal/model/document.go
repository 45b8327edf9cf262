package model

import "time"

// Objective is one OKR-style goal on a vision.
type Objective struct {
	Objective  string   `json:"objective"`
	KeyResults []string `json:"key_results"`
}

// VisionMetadata carries the aggregate fields a vision mirrors from its epic.
type VisionMetadata struct {
	CompletionPercentage int    `json:"completion_percentage"`
	EpicSlug             string `json:"epic_slug,omitempty"`
}

// RoadmapSummary mirrors one epic roadmap entry onto the vision.
type RoadmapSummary struct {
	RoadmapID            string `json:"roadmap_id"`
	Title                string `json:"title,omitempty"`
	Status               Status `json:"status"`
	CompletionPercentage int    `json:"completion_percentage"`
}

// ExecutionPlan links a vision to the epic that executes it.
type ExecutionPlan struct {
	EpicSlug string           `json:"epic_slug,omitempty"`
	Roadmaps []RoadmapSummary `json:"roadmaps"`
}

// Vision is the top-level strategic container, stored as visions/<slug>/VISION.json.
type Vision struct {
	VisionID      string         `json:"vision_id"`
	Slug          string         `json:"slug"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Status        VisionStatus   `json:"status"`
	OKRs          []Objective    `json:"okrs,omitempty"`
	Metadata      VisionMetadata `json:"metadata"`
	ExecutionPlan ExecutionPlan  `json:"execution_plan"`
	Created       time.Time      `json:"created"`
	Updated       time.Time      `json:"updated"`
}

// Gating controls how strictly an epic sequences its roadmaps.
type Gating struct {
	RequireTests        bool `json:"require_tests"`
	AllowManualOverride bool `json:"allow_manual_override"`
}

// TokenBudget tracks agent token spend for an epic.
type TokenBudget struct {
	Used                int     `json:"used"`
	Total               int     `json:"total"`
	PerRoadmap          int     `json:"per_roadmap,omitempty"`
	CompactionThreshold float64 `json:"compaction_threshold"`
}

// EpicRoadmap is an epic's view of one of its roadmaps.
type EpicRoadmap struct {
	RoadmapID            string   `json:"roadmap_id"`
	Title                string   `json:"title,omitempty"`
	Path                 string   `json:"path,omitempty"`
	Status               Status   `json:"status"`
	CompletionPercentage int      `json:"completion_percentage"`
	DependsOn            []string `json:"depends_on,omitempty"`
}

// Epic is an ordered list of roadmaps, stored as epics/<slug>/EPIC.json.
type Epic struct {
	EpicID               string        `json:"epic_id"`
	Slug                 string        `json:"slug"`
	Title                string        `json:"title"`
	VisionSlug           string        `json:"vision_slug,omitempty"`
	Status               Status        `json:"status"`
	CompletionPercentage int           `json:"completion_percentage"`
	Roadmaps             []EpicRoadmap `json:"roadmaps"`
	Gating               Gating        `json:"gating"`
	TokenBudget          TokenBudget   `json:"token_budget"`
	Created              time.Time     `json:"created"`
	Updated              time.Time     `json:"updated"`
}

// RoadmapIndex returns the position of the roadmap with the given id, or -1.
func (e *Epic) RoadmapIndex(id string) int {
	for i := range e.Roadmaps {
		if e.Roadmaps[i].RoadmapID == id {
			return i
		}
	}
	return -1
}

// PlanRef is a roadmap's view of one of its plans.
type PlanRef struct {
	Slug                 string `json:"slug"`
	Title                string `json:"title,omitempty"`
	Path                 string `json:"path"`
	Status               Status `json:"status"`
	CompletionPercentage int    `json:"completion_percentage"`
}

// CrossPlanDependency declares that one plan of a roadmap waits on another.
type CrossPlanDependency struct {
	DependentSlug string `json:"dependent_slug"`
	DependsOnSlug string `json:"depends_on_slug"`
}

// ParentEpic is a roadmap's back-reference to its epic.
type ParentEpic struct {
	EpicSlug string `json:"epic_slug,omitempty"`
	EpicPath string `json:"epic_path"`
}

// Roadmap coordinates a set of plans. Its location is recorded on the parent epic.
type Roadmap struct {
	RoadmapID             string                `json:"roadmap_id"`
	Slug                  string                `json:"slug"`
	Title                 string                `json:"title"`
	Status                Status                `json:"status"`
	CompletionPercentage  int                   `json:"completion_percentage"`
	PhaseDevPlanRefs      []PlanRef             `json:"phase_dev_plan_refs"`
	CrossPlanDependencies []CrossPlanDependency `json:"cross_plan_dependencies,omitempty"`
	ParentEpic            *ParentEpic           `json:"parent_epic,omitempty"`
	Created               time.Time             `json:"created"`
	Updated               time.Time             `json:"updated"`
}

// PlanIndex returns the position of the plan ref with the given slug, or -1.
func (r *Roadmap) PlanIndex(slug string) int {
	for i := range r.PhaseDevPlanRefs {
		if r.PhaseDevPlanRefs[i].Slug == slug {
			return i
		}
	}
	return -1
}

// Task is a leaf unit of work inside a phase.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title,omitempty"`
	Status      Status     `json:"status"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Phase groups the tasks of a plan.
type Phase struct {
	ID                   string `json:"id"`
	Name                 string `json:"name,omitempty"`
	Tasks                []Task `json:"tasks"`
	Status               Status `json:"status"`
	CompletionPercentage int    `json:"completion_percentage"`
}

// ParentContext points a plan at the document that aggregates it.
type ParentContext struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// ParentRoadmap is the parent_context type a roadmap-owned plan declares.
const ParentRoadmap = "roadmap"

// Plan is a phase-dev-plan, stored as PROGRESS.json.
type Plan struct {
	Slug                 string         `json:"slug"`
	Title                string         `json:"title,omitempty"`
	Phases               []Phase        `json:"phases"`
	Status               Status         `json:"status"`
	CompletionPercentage int            `json:"completion_percentage"`
	ParentContext        *ParentContext `json:"parent_context,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	Created              time.Time      `json:"created"`
	Updated              time.Time      `json:"updated"`
}

// Phase returns the phase with the given id, or nil.
func (p *Plan) Phase(id string) *Phase {
	for i := range p.Phases {
		if p.Phases[i].ID == id {
			return &p.Phases[i]
		}
	}
	return nil
}

// Task returns the task with the given id, or nil.
func (ph *Phase) Task(id string) *Task {
	for i := range ph.Tasks {
		if ph.Tasks[i].ID == id {
			return &ph.Tasks[i]
		}
	}
	return nil
}

// RegistryEntry is the registry's shadow of one vision.
type RegistryEntry struct {
	Slug                 string       `json:"slug"`
	Title                string       `json:"title"`
	Status               VisionStatus `json:"status"`
	CompletionPercentage int          `json:"completion_percentage"`
	Updated              time.Time    `json:"updated"`
}

// EntryFor builds the registry entry that shadows v.
func EntryFor(v *Vision) RegistryEntry {
	return RegistryEntry{
		Slug:                 v.Slug,
		Title:                v.Title,
		Status:               v.Status,
		CompletionPercentage: v.Metadata.CompletionPercentage,
		Updated:              v.Updated,
	}
}

// Document is implemented by every persisted kind. Touch refreshes the
// updated timestamp and fills created on first write.
type Document interface {
	Touch(now time.Time)
	Validate() []string
}

func touch(created, updated *time.Time, now time.Time) {
	now = now.UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func (v *Vision) Touch(now time.Time)  { touch(&v.Created, &v.Updated, now) }
func (e *Epic) Touch(now time.Time)    { touch(&e.Created, &e.Updated, now) }
func (r *Roadmap) Touch(now time.Time) { touch(&r.Created, &r.Updated, now) }
func (p *Plan) Touch(now time.Time)    { touch(&p.Created, &p.Updated, now) }
