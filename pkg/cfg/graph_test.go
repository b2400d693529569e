package cfg

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalGraph is Start --> N0 --> End.
func minimalGraph() *Graph {
	g := NewGraph()
	g.AddNode(Node{ID: StartID, Label: "Start", Shape: ShapeStart})
	g.AddNode(Node{ID: "N0", Label: "x = 1", Shape: ShapeAssignment})
	g.AddNode(Node{ID: EndID, Label: "End", Shape: ShapeEnd})
	g.AddEdge(StartID, "N0", EdgeNone)
	g.AddEdge("N0", EndID, EdgeNone)
	return g
}

func TestGraph_InsertionOrderAndLookup(t *testing.T) {
	g := minimalGraph()

	require.Len(t, g.Nodes(), 3)
	assert.Equal(t, StartID, g.Nodes()[0].ID)
	assert.Equal(t, EndID, g.Nodes()[2].ID)

	n, ok := g.Node("N0")
	require.True(t, ok)
	assert.Equal(t, "x = 1", n.Label)

	_, ok = g.Node("N9")
	assert.False(t, ok)

	assert.Equal(t, 1, g.OutDegree(StartID))
	assert.Equal(t, 0, g.OutDegree(EndID))
}

func TestGraph_ParallelEdgesAreKept(t *testing.T) {
	g := minimalGraph()
	g.AddEdge("N0", EndID, EdgeNone)
	g.AddEdge("N0", EndID, EdgeYes)

	assert.Len(t, g.Edges(), 4)
	assert.Equal(t, 3, g.OutDegree("N0"))
	assert.NoError(t, g.Validate())
}

func TestGraph_SuccessorsReturnsEdgesInOrder(t *testing.T) {
	g := minimalGraph()
	g.AddEdge("N0", EndID, EdgeYes)

	assert.Equal(t, []Edge{
		{From: "N0", To: EndID, Label: EdgeNone},
		{From: "N0", To: EndID, Label: EdgeYes},
	}, g.Successors("N0"))
	assert.Nil(t, g.Successors(EndID))
	assert.Nil(t, g.Successors("missing"))
}

func TestGraph_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Graph)
		reason string
	}{
		{
			name:   "valid",
			mutate: func(g *Graph) {},
		},
		{
			name:   "dangling target",
			mutate: func(g *Graph) { g.AddEdge("N0", "N7", EdgeNone) },
			reason: "edge to undeclared node",
		},
		{
			name:   "dangling source",
			mutate: func(g *Graph) { g.AddEdge("N7", EndID, EdgeNone) },
			reason: "edge from undeclared node",
		},
		{
			name:   "duplicate id",
			mutate: func(g *Graph) { g.AddNode(Node{ID: "N0", Label: "y", Shape: ShapeAssignment}) },
			reason: "duplicate node id",
		},
		{
			name:   "second end",
			mutate: func(g *Graph) { g.AddNode(Node{ID: "End2", Shape: ShapeEnd}) },
			reason: "expected exactly one end node, found 2",
		},
		{
			name: "unreachable node",
			mutate: func(g *Graph) {
				g.AddNode(Node{ID: "N1", Label: "orphan", Shape: ShapeAssignment})
				g.AddEdge("N1", EndID, EdgeNone)
			},
			reason: "node unreachable from start",
		},
		{
			name: "dead end",
			mutate: func(g *Graph) {
				g.AddNode(Node{ID: "N1", Label: "stuck", Shape: ShapeAssignment})
				g.AddEdge("N0", "N1", EdgeNone)
			},
			reason: "node has no outgoing edge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := minimalGraph()
			tt.mutate(g)

			err := g.Validate()
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStructural))

			var se *StructuralError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.reason, se.Reason)
		})
	}
}

func TestGraph_ValidateMissingStart(t *testing.T) {
	g := NewGraph()
	g.AddNode(Node{ID: EndID, Shape: ShapeEnd})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start node")
}

func TestGraph_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(minimalGraph())
	require.NoError(t, err)

	var decoded struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Nodes, 3)
	assert.Equal(t, Edge{From: StartID, To: "N0"}, decoded.Edges[0])

	empty, err := json.Marshal(NewGraph())
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(empty))
}
