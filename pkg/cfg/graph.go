package cfg

import (
	"encoding/json"
	"fmt"
)

// Graph is an append-only directed graph. Nodes and edges are kept in
// insertion order; nothing is ever removed or merged.
type Graph struct {
	nodes []Node
	edges []Edge
	index map[string]int
	out   map[string][]int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int), out: make(map[string][]int)}
}

// AddNode appends n. A repeated id is kept but makes Validate fail.
func (g *Graph) AddNode(n Node) {
	if _, exists := g.index[n.ID]; !exists {
		g.index[n.ID] = len(g.nodes)
	}
	g.nodes = append(g.nodes, n)
}

// AddEdge appends a directed edge. Parallel edges are allowed.
func (g *Graph) AddEdge(from, to string, label EdgeLabel) {
	g.out[from] = append(g.out[from], len(g.edges))
	g.edges = append(g.edges, Edge{From: from, To: to, Label: label})
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []Edge { return g.edges }

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// OutDegree counts edges leaving id.
func (g *Graph) OutDegree(id string) int { return len(g.out[id]) }

// Successors returns the edges leaving id, in edge order.
func (g *Graph) Successors(id string) []Edge {
	idx := g.out[id]
	if len(idx) == 0 {
		return nil
	}
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

// Validate checks the graph invariants: a single Start and End, unique
// ids, no dangling edge endpoints, every node reachable from Start, and no
// node other than End without a way out.
func (g *Graph) Validate() error {
	starts, ends := 0, 0
	seen := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		if seen[n.ID] {
			return &StructuralError{Reason: "duplicate node id", NodeID: n.ID}
		}
		seen[n.ID] = true
		switch n.Shape {
		case ShapeStart:
			starts++
		case ShapeEnd:
			ends++
		}
	}
	if starts != 1 || !seen[StartID] {
		return &StructuralError{Reason: fmt.Sprintf("expected exactly one start node, found %d", starts)}
	}
	if ends != 1 || !seen[EndID] {
		return &StructuralError{Reason: fmt.Sprintf("expected exactly one end node, found %d", ends)}
	}

	for _, e := range g.edges {
		if !seen[e.From] {
			return &StructuralError{Reason: "edge from undeclared node", NodeID: e.From}
		}
		if !seen[e.To] {
			return &StructuralError{Reason: "edge to undeclared node", NodeID: e.To}
		}
	}

	reached := map[string]bool{StartID: true}
	queue := []string{StartID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Successors(id) {
			if !reached[e.To] {
				reached[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}

	for _, n := range g.nodes {
		if !reached[n.ID] {
			return &StructuralError{Reason: "node unreachable from start", NodeID: n.ID}
		}
		if n.ID != EndID && g.OutDegree(n.ID) == 0 {
			return &StructuralError{Reason: "node has no outgoing edge", NodeID: n.ID}
		}
	}
	return nil
}

// MarshalJSON encodes the graph as {"nodes": [...], "edges": [...]}.
func (g *Graph) MarshalJSON() ([]byte, error) {
	nodes, edges := g.nodes, g.edges
	if nodes == nil {
		nodes = []Node{}
	}
	if edges == nil {
		edges = []Edge{}
	}
	return json.Marshal(struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}{nodes, edges})
}
