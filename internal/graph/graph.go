package graph

import (
	"sort"

	"github.com/RamXX/plansync/internal/model"
)

// Node is one sequenced unit: a roadmap within an epic or a plan within a
// roadmap. DependsOn lists the ids that must complete first.
type Node struct {
	ID        string
	Title     string
	Status    model.Status
	DependsOn []string
}

// Graph is an in-memory dependency graph over nodes in declaration order.
type Graph struct {
	order      []string
	nodes      map[string]*Node
	dependents map[string][]string // A -> [B, C] means B and C depend on A
}

// Build constructs a dependency graph. Later duplicates of an id are ignored.
func Build(nodes []Node) *Graph {
	g := &Graph{
		nodes:      make(map[string]*Node, len(nodes)),
		dependents: make(map[string][]string),
	}
	for i := range nodes {
		n := nodes[i]
		if _, dup := g.nodes[n.ID]; dup {
			continue
		}
		g.order = append(g.order, n.ID)
		g.nodes[n.ID] = &n
	}
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Ready returns unfinished nodes whose dependencies are all completed, in
// declaration order.
func (g *Graph) Ready() []Node {
	var ready []Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Status.Terminal() {
			continue
		}
		if len(g.BlockersOf(id)) == 0 {
			ready = append(ready, *n)
		}
	}
	return ready
}

// Blocked returns unfinished nodes with at least one incomplete dependency.
func (g *Graph) Blocked() []Node {
	var blocked []Node
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Status.Terminal() {
			continue
		}
		if len(g.BlockersOf(id)) > 0 {
			blocked = append(blocked, *n)
		}
	}
	return blocked
}

// BlockersOf returns the dependencies of id that are not completed. A
// dependency naming an unknown node is reported with only its id set.
func (g *Graph) BlockersOf(id string) []Node {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var blockers []Node
	for _, depID := range n.DependsOn {
		dep, ok := g.nodes[depID]
		if !ok {
			blockers = append(blockers, Node{ID: depID})
			continue
		}
		if dep.Status != model.StatusCompleted {
			blockers = append(blockers, *dep)
		}
	}
	return blockers
}

// Dependents returns the ids that depend directly on id.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// DetectCycles finds dependency cycles using DFS.
// Returns a list of cycle paths (each path is a slice of IDs forming the cycle).
func (g *Graph) DetectCycles() [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var cycles [][]string
	var path []string

	var dfs func(id string)
	dfs = func(id string) {
		if onStack[id] {
			cycle := []string{id}
			for i := len(path) - 1; i >= 0; i-- {
				cycle = append(cycle, path[i])
				if path[i] == id {
					break
				}
			}
			cycles = append(cycles, cycle)
			return
		}
		if visited[id] {
			return
		}
		n, ok := g.nodes[id]
		if !ok {
			return
		}
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, next := range n.DependsOn {
			dfs(next)
		}

		path = path[:len(path)-1]
		onStack[id] = false
	}

	for _, id := range g.order {
		dfs(id)
	}
	return cycles
}

// Stats returns aggregate counts.
type Stats struct {
	Total    int
	ByStatus map[model.Status]int
	Ready    int
	Blocked  int
}

func (g *Graph) Stats() Stats {
	s := Stats{Total: len(g.order), ByStatus: make(map[model.Status]int)}
	for _, id := range g.order {
		s.ByStatus[g.nodes[id].Status]++
	}
	s.Ready = len(g.Ready())
	s.Blocked = len(g.Blocked())
	return s
}

// Statuses returns the statuses present, sorted, for stable display.
func (s Stats) Statuses() []model.Status {
	out := make([]model.Status, 0, len(s.ByStatus))
	for st := range s.ByStatus {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
