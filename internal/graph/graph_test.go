package graph

import (
	"testing"

	"github.com/RamXX/plansync/internal/model"
)

func node(id string, status model.Status, deps ...string) Node {
	return Node{ID: id, Title: "Roadmap " + id, Status: status, DependsOn: deps}
}

func ids(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestReady(t *testing.T) {
	g := Build([]Node{
		node("A", model.StatusInProgress),
		node("B", model.StatusNotStarted, "A"),
		node("C", model.StatusCompleted),
		node("D", model.StatusNotStarted, "C"),
	})
	got := ids(g.Ready())
	if len(got) != 2 || got[0] != "A" || got[1] != "D" {
		t.Errorf("Ready() = %v, want [A D]", got)
	}
}

func TestBlocked(t *testing.T) {
	g := Build([]Node{
		node("A", model.StatusNotStarted),
		node("B", model.StatusNotStarted, "A"),
	})
	got := ids(g.Blocked())
	if len(got) != 1 || got[0] != "B" {
		t.Errorf("Blocked() = %v, want [B]", got)
	}
}

func TestCompletedDependencyDoesNotBlock(t *testing.T) {
	g := Build([]Node{
		node("A", model.StatusCompleted),
		node("B", model.StatusNotStarted, "A"),
	})
	if blocked := g.Blocked(); len(blocked) != 0 {
		t.Errorf("B should not be blocked when A is completed, got %v", ids(blocked))
	}
}

func TestBlockersOfUnknownDependency(t *testing.T) {
	g := Build([]Node{node("A", model.StatusNotStarted, "ghost")})
	blockers := g.BlockersOf("A")
	if len(blockers) != 1 || blockers[0].ID != "ghost" || blockers[0].Title != "" {
		t.Errorf("BlockersOf(A) = %+v, want the unknown id alone", blockers)
	}
}

func TestBlockersOf(t *testing.T) {
	g := Build([]Node{
		node("A", model.StatusInProgress),
		node("B", model.StatusFailed),
		node("C", model.StatusNotStarted, "A", "B"),
	})
	if n := len(g.BlockersOf("C")); n != 2 {
		t.Errorf("expected 2 blockers of C, got %d", n)
	}
}

func TestDetectCycles(t *testing.T) {
	g := Build([]Node{
		node("A", model.StatusNotStarted, "C"),
		node("B", model.StatusNotStarted, "A"),
		node("C", model.StatusNotStarted, "B"),
	})
	if len(g.DetectCycles()) == 0 {
		t.Error("expected at least one cycle")
	}

	acyclic := Build([]Node{node("A", ""), node("B", "", "A")})
	if c := acyclic.DetectCycles(); len(c) != 0 {
		t.Errorf("unexpected cycles %v", c)
	}
}

func TestUnblockPath(t *testing.T) {
	g := Build([]Node{
		node("A", model.StatusNotStarted),
		node("B", model.StatusNotStarted, "A"),
		node("C", model.StatusNotStarted, "A"),
		node("D", model.StatusNotStarted, "B"),
	})
	tree := g.UnblockPath("A")
	if tree == nil {
		t.Fatal("UnblockPath returned nil")
	}
	if len(tree.Children) != 2 {
		t.Fatalf("A should unblock 2 nodes, got %d", len(tree.Children))
	}
	b := tree.Children[0]
	if b.Node.ID != "B" || len(b.Children) != 1 || b.Children[0].Node.ID != "D" {
		t.Errorf("B should lead to D, got %+v", b)
	}
	if g.UnblockPath("missing") != nil {
		t.Error("unknown id should yield nil")
	}
	if roots := ids(g.Roots()); len(roots) != 1 || roots[0] != "A" {
		t.Errorf("Roots() = %v, want [A]", roots)
	}
}

func TestStats(t *testing.T) {
	g := Build([]Node{
		node("A", model.StatusCompleted),
		node("B", model.StatusInProgress, "A"),
		node("C", model.StatusNotStarted, "B"),
	})
	s := g.Stats()
	if s.Total != 3 {
		t.Errorf("total = %d, want 3", s.Total)
	}
	if s.ByStatus[model.StatusCompleted] != 1 {
		t.Errorf("completed = %d, want 1", s.ByStatus[model.StatusCompleted])
	}
	if s.Ready != 1 || s.Blocked != 1 {
		t.Errorf("ready/blocked = %d/%d, want 1/1", s.Ready, s.Blocked)
	}
	if len(s.Statuses()) != 3 {
		t.Errorf("statuses = %v", s.Statuses())
	}
}
