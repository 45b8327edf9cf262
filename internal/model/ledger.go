package model

import "time"

// Checkpoint kinds appended to the ledger.
const (
	CheckpointRoadmapStarted  = "roadmap_started"
	CheckpointRoadmapComplete = "roadmap_complete"
	CheckpointRoadmapFailed   = "roadmap_failed"
	CheckpointEpicComplete    = "epic_complete"
	CheckpointGateBlocked     = "gate_blocked"
	CheckpointManual          = "manual"
)

// Checkpoint is an immutable audit record.
type Checkpoint struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	RoadmapID    string         `json:"roadmapId,omitempty"`
	RoadmapIndex int            `json:"roadmapIndex"`
	Message      string         `json:"message,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// RoadmapFailure records why a roadmap failed.
type RoadmapFailure struct {
	RoadmapID string    `json:"roadmapId"`
	Reason    string    `json:"reason,omitempty"`
	FailedAt  time.Time `json:"failedAt"`
}

// LedgerBudget is the ledger's copy of the epic's token budget.
type LedgerBudget struct {
	Used                int     `json:"used"`
	Total               int     `json:"total"`
	CompactionThreshold float64 `json:"compactionThreshold"`
}

// Ledger is the per-epic orchestrator state stored at
// epics/<slug>/state/orchestrator-state.json, separate from EPIC.json.
type Ledger struct {
	EpicSlug            string           `json:"epicSlug"`
	Status              Status           `json:"status"`
	RoadmapCount        int              `json:"roadmapCount"`
	CurrentRoadmapIndex int              `json:"currentRoadmapIndex"`
	ActiveRoadmaps      []string         `json:"activeRoadmaps"`
	CompletedRoadmaps   []string         `json:"completedRoadmaps"`
	FailedRoadmaps      []RoadmapFailure `json:"failedRoadmaps"`
	TokenBudget         LedgerBudget     `json:"tokenBudget"`
	Checkpoints         []Checkpoint     `json:"checkpoints"`
	StartedAt           time.Time        `json:"startedAt"`
	CompletedAt         *time.Time       `json:"completedAt,omitempty"`
	TotalDurationMs     int64            `json:"totalDurationMs,omitempty"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// IsActive reports whether roadmapID is in the active set.
func (l *Ledger) IsActive(roadmapID string) bool {
	return containsString(l.ActiveRoadmaps, roadmapID)
}

// IsCompleted reports whether roadmapID is in the completed set.
func (l *Ledger) IsCompleted(roadmapID string) bool {
	return containsString(l.CompletedRoadmaps, roadmapID)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
