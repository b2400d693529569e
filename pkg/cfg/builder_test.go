package cfg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/codeflow/pkg/pyast"
)

func buildSource(t *testing.T, src string, opts Options) *Graph {
	t.Helper()
	prog, err := pyast.Parse(context.Background(), []byte(src), pyast.Options{})
	require.NoError(t, err)
	g, err := Build(prog, opts)
	require.NoError(t, err)
	return g
}

func edgeStrings(g *Graph) []string {
	out := make([]string, 0, len(g.Edges()))
	for _, e := range g.Edges() {
		if e.Label == EdgeNone {
			out = append(out, fmt.Sprintf("%s --> %s", e.From, e.To))
		} else {
			out = append(out, fmt.Sprintf("%s -%s-> %s", e.From, e.Label, e.To))
		}
	}
	return out
}

func nodeIDs(g *Graph) []string {
	out := make([]string, 0, len(g.Nodes()))
	for _, n := range g.Nodes() {
		out = append(out, n.ID)
	}
	return out
}

func TestBuild_Empty(t *testing.T) {
	g := buildSource(t, "", Options{})

	assert.Equal(t, []string{"Start", "End"}, nodeIDs(g))
	assert.Equal(t, []string{"Start --> End"}, edgeStrings(g))
}

func TestBuild_NilProgram(t *testing.T) {
	g, err := Build(nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Start --> End"}, edgeStrings(g))
}

func TestBuild_FunctionWithReturn(t *testing.T) {
	g := buildSource(t, "def f(x):\n    return x", Options{})

	assert.Equal(t, []string{"Start", "N0", "N1", "End"}, nodeIDs(g))
	assert.Equal(t, []string{
		"Start --> N0",
		"N0 --> N1",
		"N1 --> End",
	}, edgeStrings(g))

	fn, ok := g.Node("N0")
	require.True(t, ok)
	assert.Equal(t, "f(x)", fn.Label)
	assert.Equal(t, ShapeSubroutine, fn.Shape)
	assert.Equal(t, 1, fn.Line)

	ret, ok := g.Node("N1")
	require.True(t, ok)
	assert.Equal(t, "return x", ret.Label)
	assert.Equal(t, ShapeTerminator, ret.Shape)
	assert.Equal(t, 2, ret.Line)
}

func TestBuild_DefinitionAndTopLevelCall(t *testing.T) {
	src := `def f(x):
    return x

print(f(1))
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{
		"Start --> N0",
		"N0 --> N1",
		"N1 --> End",
		"Start --> N2",
		"N2 --> End",
	}, edgeStrings(g))
}

func TestBuild_IfElseBothReturn(t *testing.T) {
	src := `if x:
    return 1
else:
    return 2
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{"Start", "N0", "N1", "N2", "End"}, nodeIDs(g))
	assert.Equal(t, []string{
		"Start --> N0",
		"N0 -Yes-> N1",
		"N1 --> End",
		"N0 -No-> N2",
		"N2 --> End",
	}, edgeStrings(g))
}

func TestBuild_IfWithoutElse(t *testing.T) {
	src := `x = 1
if x > 0:
    print(x)
y = 2
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{
		"Start --> N0",
		"N0 --> N1",
		"N1 -Yes-> N2",
		"N2 --> N3",
		"N1 -No-> N3",
		"N3 --> End",
	}, edgeStrings(g))

	dec, _ := g.Node("N1")
	assert.Equal(t, "if x #gt; 0", dec.Label)
	assert.Equal(t, ShapeDecision, dec.Shape)
}

func TestBuild_NestedIfJoinsChain(t *testing.T) {
	src := `if a:
    if b:
        x = 1
else:
    y = 2
z = 3
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{
		"Start --> N0",
		"N0 -Yes-> N1",
		"N1 -Yes-> N2",
		"N2 --> N4",
		"N1 -No-> N4",
		"N0 -No-> N3",
		"N3 --> N4",
		"N4 --> End",
	}, edgeStrings(g))
}

func TestBuild_ElifChain(t *testing.T) {
	src := `if a:
    print(1)
elif b:
    print(2)
else:
    print(3)
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{
		"Start --> N0",
		"N0 -Yes-> N1",
		"N1 --> End",
		"N0 -No-> N2",
		"N2 -Yes-> N3",
		"N3 --> End",
		"N2 -No-> N4",
		"N4 --> End",
	}, edgeStrings(g))

	elif, _ := g.Node("N2")
	assert.Equal(t, "if b", elif.Label)
}

func TestBuild_WhileLoop(t *testing.T) {
	src := `i = 0
while i < 3:
    i += 1
print(i)
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{
		"Start --> N0",
		"N0 --> N1",
		"N1 -Yes-> N2",
		"N2 --> N1",
		"N1 -No-> N3",
		"N3 --> End",
	}, edgeStrings(g))

	loop, _ := g.Node("N1")
	assert.Equal(t, "while i #lt; 3", loop.Label)
	assert.Equal(t, ShapeLoopTest, loop.Shape)

	inc, _ := g.Node("N2")
	assert.Equal(t, "i += 1", inc.Label)
	assert.Equal(t, ShapeAssignment, inc.Shape)
}

func TestBuild_ForLoopWithEarlyReturn(t *testing.T) {
	src := `def find(xs):
    for x in xs:
        if x:
            return x
    return None
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{
		"Start --> N0",
		"N0 --> N1",
		"N1 -Yes-> N2",
		"N2 -Yes-> N3",
		"N3 --> End",
		"N2 -No-> N1",
		"N1 -No-> N4",
		"N4 --> End",
	}, edgeStrings(g))

	loop, _ := g.Node("N1")
	assert.Equal(t, "for x in xs", loop.Label)
}

func TestBuild_LoopAsLastStatementExitsToEnd(t *testing.T) {
	g := buildSource(t, "for c in s:\n    print(c)\n", Options{})

	assert.Equal(t, []string{
		"Start --> N0",
		"N0 -Yes-> N1",
		"N1 --> N0",
		"N0 -No-> End",
	}, edgeStrings(g))
}

func TestBuild_CallShapes(t *testing.T) {
	src := `name = input("name? ")
greet(name)
print("hi")
`
	g := buildSource(t, src, Options{})

	n0, _ := g.Node("N0")
	assert.Equal(t, ShapeAssignment, n0.Shape)
	assert.Equal(t, "name = input(#quot;name? #quot;)", n0.Label)

	n1, _ := g.Node("N1")
	assert.Equal(t, ShapeSubroutine, n1.Shape)
	assert.Equal(t, "greet(name)", n1.Label)

	n2, _ := g.Node("N2")
	assert.Equal(t, ShapeInputOutput, n2.Shape)
	assert.Equal(t, "print(#quot;hi#quot;)", n2.Label)
}

func TestBuild_CustomIOCalls(t *testing.T) {
	g := buildSource(t, "log(x)\nprint(x)\n", Options{IOCalls: []string{"log"}})

	n0, _ := g.Node("N0")
	assert.Equal(t, ShapeInputOutput, n0.Shape)
	n1, _ := g.Node("N1")
	assert.Equal(t, ShapeSubroutine, n1.Shape)
}

func TestBuild_ChainedAssignment(t *testing.T) {
	g := buildSource(t, "a = b = 1\n", Options{})

	n0, _ := g.Node("N0")
	assert.Equal(t, "a = b = 1", n0.Label)
}

func TestBuild_SkipsCodeAfterReturn(t *testing.T) {
	src := `def f():
    return 1
    print("dead")
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{"Start", "N0", "N1", "End"}, nodeIDs(g))
}

func TestBuild_TransparentConstructs(t *testing.T) {
	src := `with open("f") as fh:
    data = fh.read()
try:
    process(data)
except ValueError:
    print("bad")
`
	g := buildSource(t, src, Options{})

	assert.Equal(t, []string{
		"Start --> N0",
		"N0 --> N1",
		"N1 --> N2",
		"N2 --> End",
	}, edgeStrings(g))

	n0, _ := g.Node("N0")
	assert.Equal(t, "data = fh.read()", n0.Label)
}

func TestBuild_DedupIsOffByDefault(t *testing.T) {
	src := "print(x)\nprint(x)\n"

	g := buildSource(t, src, Options{})
	assert.Equal(t, []string{"Start", "N0", "N1", "End"}, nodeIDs(g))

	g = buildSource(t, src, Options{Dedup: true})
	assert.Equal(t, []string{"Start", "N0", "End"}, nodeIDs(g))
	assert.Equal(t, []string{
		"Start --> N0",
		"N0 --> N0",
		"N0 --> End",
	}, edgeStrings(g))
}

func TestBuild_LabelTruncation(t *testing.T) {
	g := buildSource(t, "value = compute_something_long(a, b, c)\n", Options{MaxLabelLength: 12})

	n0, _ := g.Node("N0")
	assert.Equal(t, "value = c...", n0.Label)
}

func TestBuild_DepthLimit(t *testing.T) {
	body := []pyast.Stmt{&pyast.Assign{Targets: []string{"x"}, Op: "=", Value: "1"}}
	for i := 0; i < 10; i++ {
		body = []pyast.Stmt{&pyast.If{Position: pyast.Position{Line: 10 - i}, Cond: "c", Then: body}}
	}

	_, err := Build(&pyast.Program{Body: body}, Options{MaxDepth: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDepthExceeded))

	var limitErr *LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 4, limitErr.Depth)

	_, err = Build(&pyast.Program{Body: body}, Options{MaxDepth: 20})
	assert.NoError(t, err)
}

func TestBuild_LongElifChainIsNotNesting(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("if x == 0:\n    y = 0\n")
	for i := 1; i <= 160; i++ {
		fmt.Fprintf(&sb, "elif x == %d:\n    y = %d\n", i, i)
	}
	sb.WriteString("else:\n    y = -1\n")

	g := buildSource(t, sb.String(), Options{})
	assert.Len(t, g.Nodes(), 2+161*2+1)

	// An if nested under else is real nesting and still counts.
	var nested []pyast.Stmt
	for i := 0; i < 10; i++ {
		nested = []pyast.Stmt{&pyast.If{Position: pyast.Position{Line: 10 - i}, Cond: "c", Else: nested}}
	}
	nested[0].(*pyast.If).Then = []pyast.Stmt{&pyast.Assign{Targets: []string{"x"}, Op: "=", Value: "1"}}
	_, err := Build(&pyast.Program{Body: nested}, Options{MaxDepth: 3})
	assert.True(t, errors.Is(err, ErrDepthExceeded))
}

func TestBuild_UnresolvedJoinIsStructuralError(t *testing.T) {
	b := newBuilder(Options{})
	j := b.newJoin("N0")

	_, err := b.resolve(target{join: j})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructural))
}

func TestBuild_ConcurrentBuildsAreIndependent(t *testing.T) {
	src := `def f(n):
    total = 0
    for i in range(n):
        if i % 2:
            total += i
    return total
`
	prog, err := pyast.Parse(context.Background(), []byte(src), pyast.Options{})
	require.NoError(t, err)

	want, err := Build(prog, Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Graph, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := Build(prog, Options{})
			if err == nil {
				results[i] = g
			}
		}(i)
	}
	wg.Wait()

	for _, g := range results {
		require.NotNil(t, g)
		assert.Equal(t, edgeStrings(want), edgeStrings(g))
		assert.Equal(t, nodeIDs(want), nodeIDs(g))
	}
}

func TestBuild_Invariants(t *testing.T) {
	sources := map[string]string{
		"nested loops": `for i in range(3):
    for j in range(i):
        if i == j:
            print(i)
        else:
            continue
`,
		"returns in every branch": `def sign(x):
    if x > 0:
        return 1
    elif x < 0:
        return -1
    return 0
`,
		"while with return": `def wait():
    while True:
        if ready():
            return
        sleep(1)
`,
		"class with methods": `class Counter:
    def __init__(self):
        self.n = 0

    def inc(self):
        self.n += 1
`,
		"top level mix": `import os
x = os.getcwd()
def helper():
    pass
if x:
    print(x)
`,
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			g := buildSource(t, src, Options{})
			require.NoError(t, g.Validate())

			starts, ends := 0, 0
			for _, n := range g.Nodes() {
				switch n.Shape {
				case ShapeStart:
					starts++
				case ShapeEnd:
					ends++
				}
			}
			assert.Equal(t, 1, starts)
			assert.Equal(t, 1, ends)

			for _, n := range g.Nodes() {
				if n.Shape == ShapeTerminator {
					succ := g.Successors(n.ID)
					require.Len(t, succ, 1)
					assert.Equal(t, EndID, succ[0].To)
				}
			}
		})
	}
}
