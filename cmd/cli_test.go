package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/orchestrator"
)

func TestParseObjective(t *testing.T) {
	tests := []struct {
		raw     string
		want    model.Objective
		wantErr bool
	}{
		{"Grow: 10k users; 99% uptime", model.Objective{Objective: "Grow", KeyResults: []string{"10k users", "99% uptime"}}, false},
		{"Ship", model.Objective{Objective: "Ship", KeyResults: []string{}}, false},
		{"Ship: ;  ; ", model.Objective{Objective: "Ship", KeyResults: []string{}}, false},
		{": orphan", model.Objective{}, true},
		{"", model.Objective{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseObjective(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseObjective(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseObjective(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

// resetFlags returns every flag of the command tree to its default so
// consecutive executions in one test do not leak values.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer resetFlags(rootCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("plansync %v: %v\nstderr: %s", args, err, errOut.String())
	}
	return out.String()
}

func TestCLIWorkflow(t *testing.T) {
	root := filepath.Join(t.TempDir(), DefaultRootName)
	cli := func(args ...string) string {
		return run(t, append([]string{"--root", root, "--quiet"}, args...)...)
	}

	cli("init")
	cli("vision", "create", "Ship It", "--slug", "ship", "--okr", "Adoption: 100 teams")
	cli("epic", "create", "launch", "Launch", "--vision", "ship", "--token-budget", "100", "--threshold", "0.5")
	cli("roadmap", "add", "launch", "Core")
	cli("roadmap", "add", "launch", "UI", "--depends-on", "roadmap-0")
	cli("plan", "create", "launch:roadmap-0", "Core plan", "--slug", "core", "--phase", "p1:a,b")
	cli("plan", "create", "launch:roadmap-1", "UI plan", "--slug", "ui", "--phase", "p1:x")
	cli("ledger", "start", "launch")
	cli("task", "complete", "core", "p1", "a")
	cli("task", "complete", "core", "p1", "b")

	var st orchestrator.EpicStatus
	if err := json.Unmarshal([]byte(cli("--json", "epic", "status", "launch")), &st); err != nil {
		t.Fatalf("decode epic status: %v", err)
	}
	if st.Epic.CompletionPercentage != 50 {
		t.Errorf("epic completion = %d, want 50", st.Epic.CompletionPercentage)
	}
	if st.Ledger == nil {
		t.Fatal("ledger missing from epic status")
	}
	if !reflect.DeepEqual(st.Ledger.CompletedRoadmaps, []string{"roadmap-0"}) {
		t.Errorf("completed = %v", st.Ledger.CompletedRoadmaps)
	}
	if !reflect.DeepEqual(st.Ledger.ActiveRoadmaps, []string{"roadmap-1"}) {
		t.Errorf("active = %v", st.Ledger.ActiveRoadmaps)
	}

	var v model.Vision
	if err := json.Unmarshal([]byte(cli("--json", "vision", "show", "ship")), &v); err != nil {
		t.Fatalf("decode vision: %v", err)
	}
	if v.Metadata.CompletionPercentage != 50 || v.Status != model.VisionExecuting {
		t.Errorf("vision = %d%% %s, want 50%% executing", v.Metadata.CompletionPercentage, v.Status)
	}
	if len(v.OKRs) != 1 || v.OKRs[0].KeyResults[0] != "100 teams" {
		t.Errorf("okrs = %+v", v.OKRs)
	}

	var budget struct {
		NeedsCompaction bool `json:"needs_compaction"`
	}
	if err := json.Unmarshal([]byte(cli("--json", "ledger", "budget", "launch", "60")), &budget); err != nil {
		t.Fatalf("decode budget: %v", err)
	}
	if !budget.NeedsCompaction {
		t.Error("60/100 at threshold 0.5 should need compaction")
	}

	cli("doctor")
}

func TestCLIRejectsBadStatus(t *testing.T) {
	root := filepath.Join(t.TempDir(), DefaultRootName)
	run(t, "--root", root, "--quiet", "init")
	run(t, "--root", root, "--quiet", "epic", "create", "e", "E")

	rootCmd.SetArgs([]string{"--root", root, "--quiet", "roadmap", "status", "e", "roadmap-0", "done"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	defer resetFlags(rootCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected an invalid status error")
	}
}

func TestCLIConfigAndLateAdditions(t *testing.T) {
	root := filepath.Join(t.TempDir(), DefaultRootName)
	cli := func(args ...string) string {
		return run(t, append([]string{"--root", root, "--quiet"}, args...)...)
	}

	cli("init")
	cli("config", "set", "lock.stale_after", "45s")
	var got map[string]string
	if err := json.Unmarshal([]byte(cli("--json", "config", "get", "lock.stale_after")), &got); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if got["lock.stale_after"] != "45s" {
		t.Errorf("lock.stale_after = %q, want 45s", got["lock.stale_after"])
	}

	cli("epic", "create", "e", "E")
	cli("roadmap", "add", "e", "Core")
	cli("plan", "create", "e:roadmap-0", "First", "--slug", "first", "--phase", "p1:t")
	cli("task", "complete", "first", "p1", "t")

	// A plan added to a finished roadmap pulls the epic back to in progress.
	cli("plan", "create", "e:roadmap-0", "Second", "--slug", "second", "--phase", "p1:t")
	var st orchestrator.EpicStatus
	if err := json.Unmarshal([]byte(cli("--json", "epic", "status", "e")), &st); err != nil {
		t.Fatalf("decode epic status: %v", err)
	}
	if st.Epic.CompletionPercentage != 50 || st.Epic.Status != model.StatusInProgress {
		t.Errorf("epic = %d%% %s, want 50%% in_progress", st.Epic.CompletionPercentage, st.Epic.Status)
	}
}
