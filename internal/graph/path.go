package graph

// PathNode is a node and the nodes it unblocks.
type PathNode struct {
	Node     Node
	Children []*PathNode
}

// UnblockPath builds the tree of nodes transitively waiting on id, following
// dependents forward. A node reached twice appears as a leaf the second time.
func (g *Graph) UnblockPath(id string) *PathNode {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	return g.buildPath(id, make(map[string]bool))
}

func (g *Graph) buildPath(id string, visited map[string]bool) *PathNode {
	node := &PathNode{Node: *g.nodes[id]}
	if visited[id] {
		return node
	}
	visited[id] = true
	for _, child := range g.dependents[id] {
		if _, ok := g.nodes[child]; ok {
			node.Children = append(node.Children, g.buildPath(child, visited))
		}
	}
	return node
}

// Roots returns nodes without dependencies, in declaration order.
func (g *Graph) Roots() []Node {
	var roots []Node
	for _, id := range g.order {
		if len(g.nodes[id].DependsOn) == 0 {
			roots = append(roots, *g.nodes[id])
		}
	}
	return roots
}
