package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
)

// Init creates the epic's ledger if it does not exist yet and returns it.
func (o *Orchestrator) Init(ctx context.Context, epicSlug string) (*model.Ledger, error) {
	if l, err := o.store.LoadLedger(epicSlug); err != nil || l != nil {
		return l, err
	}
	epic, err := o.store.ReadEpic(epicSlug)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	now := o.store.Now()
	l := &model.Ledger{
		EpicSlug:          epicSlug,
		Status:            model.StatusNotStarted,
		RoadmapCount:      len(epic.Roadmaps),
		ActiveRoadmaps:    []string{},
		CompletedRoadmaps: []string{},
		FailedRoadmaps:    []model.RoadmapFailure{},
		Checkpoints:       []model.Checkpoint{},
		TokenBudget: model.LedgerBudget{
			Used:                epic.TokenBudget.Used,
			Total:               epic.TokenBudget.Total,
			CompactionThreshold: epic.TokenBudget.CompactionThreshold,
		},
		StartedAt: now,
	}
	if err := o.store.SaveLedger(ctx, l); err != nil {
		return nil, err
	}
	o.logger.Info("ledger initialized", "epic", epicSlug, "roadmaps", l.RoadmapCount)
	return l, nil
}

// update runs fn on the ledger, creating it first when missing.
func (o *Orchestrator) update(ctx context.Context, epicSlug string, fn func(*model.Ledger) error) (*model.Ledger, error) {
	l, err := o.store.UpdateLedger(ctx, epicSlug, fn)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := o.Init(ctx, epicSlug); err != nil {
			return nil, err
		}
		return o.store.UpdateLedger(ctx, epicSlug, fn)
	}
	return l, err
}

func (o *Orchestrator) checkpoint(l *model.Ledger, kind, roadmapID, message string, data map[string]any) model.Checkpoint {
	cp := model.Checkpoint{
		ID:           uuid.NewString(),
		Kind:         kind,
		RoadmapID:    roadmapID,
		RoadmapIndex: l.CurrentRoadmapIndex,
		Message:      message,
		Data:         data,
		CreatedAt:    o.store.Now(),
	}
	l.Checkpoints = append(l.Checkpoints, cp)
	return cp
}

// AddActiveRoadmap marks roadmapID as running.
func (o *Orchestrator) AddActiveRoadmap(ctx context.Context, epicSlug, roadmapID string) (*model.Ledger, error) {
	return o.update(ctx, epicSlug, func(l *model.Ledger) error {
		if l.IsActive(roadmapID) {
			return nil
		}
		l.ActiveRoadmaps = append(l.ActiveRoadmaps, roadmapID)
		if l.Status.PreStart() {
			l.Status = model.StatusInProgress
		}
		o.checkpoint(l, model.CheckpointRoadmapStarted, roadmapID, "", nil)
		return nil
	})
}

// CompleteRoadmap moves roadmapID from active to completed. The milestone
// checkpoint is written by AdvanceToNextRoadmap.
func (o *Orchestrator) CompleteRoadmap(ctx context.Context, epicSlug, roadmapID string) (*model.Ledger, error) {
	return o.update(ctx, epicSlug, func(l *model.Ledger) error {
		l.ActiveRoadmaps = without(l.ActiveRoadmaps, roadmapID)
		if !l.IsCompleted(roadmapID) {
			l.CompletedRoadmaps = append(l.CompletedRoadmaps, roadmapID)
		}
		return nil
	})
}

// FailRoadmap records the failure and fails the epic execution.
func (o *Orchestrator) FailRoadmap(ctx context.Context, epicSlug, roadmapID, reason string) (*model.Ledger, error) {
	return o.update(ctx, epicSlug, func(l *model.Ledger) error {
		l.ActiveRoadmaps = without(l.ActiveRoadmaps, roadmapID)
		l.FailedRoadmaps = append(l.FailedRoadmaps, model.RoadmapFailure{
			RoadmapID: roadmapID,
			Reason:    reason,
			FailedAt:  o.store.Now(),
		})
		l.Status = model.StatusFailed
		o.checkpoint(l, model.CheckpointRoadmapFailed, roadmapID, reason, nil)
		return nil
	})
}

// Advance is the outcome of AdvanceToNextRoadmap.
type Advance struct {
	NextIndex     int  `json:"next_index"`
	EpicCompleted bool `json:"epic_completed"`
}

// AdvanceToNextRoadmap moves past the current roadmap and any following
// roadmaps that are already completed. Past the last roadmap the execution
// is marked completed and its duration recorded.
func (o *Orchestrator) AdvanceToNextRoadmap(ctx context.Context, epicSlug string) (*Advance, *model.Ledger, error) {
	epic, err := o.store.ReadEpic(epicSlug)
	if err != nil {
		return nil, nil, err
	}
	var adv Advance
	l, err := o.update(ctx, epicSlug, func(l *model.Ledger) error {
		l.RoadmapCount = len(epic.Roadmaps)
		if l.Status == model.StatusCompleted {
			adv = Advance{NextIndex: l.CurrentRoadmapIndex, EpicCompleted: true}
			return nil
		}
		current := ""
		if l.CurrentRoadmapIndex < len(epic.Roadmaps) {
			current = epic.Roadmaps[l.CurrentRoadmapIndex].RoadmapID
		}
		next := l.CurrentRoadmapIndex + 1
		for next < l.RoadmapCount && l.IsCompleted(epic.Roadmaps[next].RoadmapID) {
			next++
		}
		if next >= l.RoadmapCount {
			now := o.store.Now()
			l.Status = model.StatusCompleted
			l.CompletedAt = &now
			l.TotalDurationMs = now.Sub(l.StartedAt).Milliseconds()
			o.checkpoint(l, model.CheckpointEpicComplete, current, "", nil)
			adv = Advance{NextIndex: l.CurrentRoadmapIndex, EpicCompleted: true}
			return nil
		}
		o.checkpoint(l, model.CheckpointRoadmapComplete, current, "", nil)
		l.CurrentRoadmapIndex = next
		adv = Advance{NextIndex: next}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &adv, l, nil
}

// UpdateTokenBudget records usage and reports whether used/total has reached
// the compaction threshold. The ledger never compacts anything itself.
func (o *Orchestrator) UpdateTokenBudget(ctx context.Context, epicSlug string, used int) (needsCompaction bool, l *model.Ledger, err error) {
	if used < 0 {
		return false, nil, fmt.Errorf("token usage must not be negative, got %d", used)
	}
	l, err = o.update(ctx, epicSlug, func(l *model.Ledger) error {
		l.TokenBudget.Used = used
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return NeedsCompaction(l.TokenBudget), l, nil
}

// NeedsCompaction is used/total >= threshold; a zero total never compacts.
func NeedsCompaction(b model.LedgerBudget) bool {
	if b.Total <= 0 || b.CompactionThreshold <= 0 {
		return false
	}
	return float64(b.Used)/float64(b.Total) >= b.CompactionThreshold
}

// CreateCheckpoint appends a checkpoint of any kind.
func (o *Orchestrator) CreateCheckpoint(ctx context.Context, epicSlug, kind, roadmapID, message string, data map[string]any) (*model.Checkpoint, error) {
	if kind == "" {
		kind = model.CheckpointManual
	}
	var cp model.Checkpoint
	_, err := o.update(ctx, epicSlug, func(l *model.Ledger) error {
		cp = o.checkpoint(l, kind, roadmapID, message, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func without(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
