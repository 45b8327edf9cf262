package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state shared by epics, roadmaps, plans, phases and tasks.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPending    Status = "pending"
	StatusPlanning   Status = "planning"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var validStatuses = map[Status]bool{
	StatusNotStarted: true,
	StatusPending:    true,
	StatusPlanning:   true,
	StatusInProgress: true,
	StatusBlocked:    true,
	StatusCompleted:  true,
	StatusFailed:     true,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !validStatuses[st] {
		return "", fmt.Errorf("invalid status %q: must be one of not_started, pending, planning, in_progress, blocked, completed, failed", s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

// Valid reports whether s is a declared status. The empty status is not valid.
func (s Status) Valid() bool { return validStatuses[s] }

// PreStart reports whether s is one of the states a unit holds before any work lands.
func (s Status) PreStart() bool {
	return s == StatusNotStarted || s == StatusPending || s == StatusPlanning || s == ""
}

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// VisionStatus is the lifecycle state of a vision.
type VisionStatus string

const (
	VisionNotStarted VisionStatus = "not_started"
	VisionPlanning   VisionStatus = "planning"
	VisionExecuting  VisionStatus = "executing"
	VisionPaused     VisionStatus = "paused"
	VisionCompleted  VisionStatus = "completed"
	VisionFailed     VisionStatus = "failed"
)

var validVisionStatuses = map[VisionStatus]bool{
	VisionNotStarted: true,
	VisionPlanning:   true,
	VisionExecuting:  true,
	VisionPaused:     true,
	VisionCompleted:  true,
	VisionFailed:     true,
}

func ParseVisionStatus(s string) (VisionStatus, error) {
	st := VisionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !validVisionStatuses[st] {
		return "", fmt.Errorf("invalid vision status %q: must be one of not_started, planning, executing, paused, completed, failed", s)
	}
	return st, nil
}

func (s VisionStatus) String() string { return string(s) }

func (s VisionStatus) Valid() bool { return validVisionStatuses[s] }

// Active reports whether the vision still has work ahead of it.
func (s VisionStatus) Active() bool {
	return s != VisionCompleted && s != VisionFailed
}

// VisionStatusFor maps an epic status onto the vision that owns it.
// ok is false when the epic status carries no vision-level meaning and the
// vision should keep its current status.
func VisionStatusFor(epic Status) (status VisionStatus, ok bool) {
	switch epic {
	case StatusCompleted:
		return VisionCompleted, true
	case StatusInProgress:
		return VisionExecuting, true
	case StatusFailed:
		return VisionFailed, true
	default:
		return "", false
	}
}
