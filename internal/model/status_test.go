package model

import "testing"

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input string
		want  Status
		err   bool
	}{
		{"not_started", StatusNotStarted, false},
		{"in_progress", StatusInProgress, false},
		{"COMPLETED", StatusCompleted, false},
		{"  failed  ", StatusFailed, false},
		{"pending", StatusPending, false},
		{"closed", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.input)
		if tt.err && err == nil {
			t.Errorf("ParseStatus(%q) expected error", tt.input)
		}
		if !tt.err && err != nil {
			t.Errorf("ParseStatus(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseVisionStatus(t *testing.T) {
	if _, err := ParseVisionStatus("Executing"); err != nil {
		t.Errorf("ParseVisionStatus(Executing): %v", err)
	}
	if _, err := ParseVisionStatus("in_progress"); err == nil {
		t.Error("in_progress is not a vision status")
	}
}

func TestVisionStatusFor(t *testing.T) {
	tests := []struct {
		epic Status
		want VisionStatus
		ok   bool
	}{
		{StatusCompleted, VisionCompleted, true},
		{StatusInProgress, VisionExecuting, true},
		{StatusFailed, VisionFailed, true},
		{StatusNotStarted, "", false},
		{StatusPlanning, "", false},
	}
	for _, tt := range tests {
		got, ok := VisionStatusFor(tt.epic)
		if got != tt.want || ok != tt.ok {
			t.Errorf("VisionStatusFor(%s) = (%q, %v), want (%q, %v)", tt.epic, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPreStart(t *testing.T) {
	for _, s := range []Status{StatusNotStarted, StatusPending, StatusPlanning} {
		if !s.PreStart() {
			t.Errorf("%s should be pre-start", s)
		}
	}
	for _, s := range []Status{StatusInProgress, StatusCompleted, StatusFailed, StatusBlocked} {
		if s.PreStart() {
			t.Errorf("%s should not be pre-start", s)
		}
	}
}
