package cfg

import (
	"fmt"
	"strings"

	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/pkg/label"
	"github.com/l3aro/codeflow/pkg/pyast"
)

// DefaultIOCalls are the callees drawn as input/output nodes.
var DefaultIOCalls = []string{"print", "input"}

// Options configures Build.
type Options struct {
	// Dedup reuses the id of an earlier node with the same shape and label.
	// It declutters repetitive code but merges statements that only look
	// alike, so it is off by default.
	Dedup bool

	// MaxDepth bounds block nesting. 0 means pyast.DefaultMaxDepth.
	MaxDepth int

	// IOCalls lists callee names drawn as input/output. nil means
	// DefaultIOCalls.
	IOCalls []string

	// MaxLabelLength truncates long labels. 0 disables truncation.
	MaxLabelLength int

	// Logger receives debug output about skipped code. nil discards it.
	Logger log.Logger
}

// pending is one loose end of a statement sequence: either an edge leaving
// a concrete node, or a join standing for several such edges.
type pending struct {
	from  string
	label EdgeLabel
	join  int
}

// target is where a drafted edge points: a concrete node or a join marker
// that is substituted once its successor is known.
type target struct {
	node string
	join int
}

type draft struct {
	from  string
	label EdgeLabel
	to    target
}

// join is the "whatever follows construct X" marker for a conditional or
// loop. live is set once any edge flows into it.
type join struct {
	owner string
	bound *target
	live  bool
}

// builder holds the state of a single Build call.
type builder struct {
	opts    Options
	logger  log.Logger
	graph   *Graph
	nextID  int
	labels  map[string]string
	ioCalls map[string]bool
	drafts  []draft
	joins   []join // index 0 unused so a zero join means none
	hasDefs bool
}

// Build constructs the control-flow graph of prog.
//
// Nodes are numbered N0, N1, ... in depth-first pre-order, between the
// reserved Start (declared first) and End (declared last). Edges whose
// destination is the successor of a conditional or loop are drafted
// against a join marker and only rewritten to concrete ids after the whole
// program has been walked, then appended to the graph in draft order.
func Build(prog *pyast.Program, opts Options) (*Graph, error) {
	b := newBuilder(opts)
	b.graph.AddNode(Node{ID: StartID, Label: "Start", Shape: ShapeStart})

	var body []pyast.Stmt
	if prog != nil {
		body = prog.Body
	}
	cur, err := b.sequence(body, []pending{{from: StartID}}, 0)
	if err != nil {
		return nil, err
	}

	// A module of only definitions runs nothing at top level.
	if !(b.hasDefs && len(cur) == 1 && cur[0].from == StartID) {
		b.link(cur, target{node: EndID})
	}

	b.graph.AddNode(Node{ID: EndID, Label: "End", Shape: ShapeEnd})

	for _, d := range b.drafts {
		to, err := b.resolve(d.to)
		if err != nil {
			return nil, err
		}
		b.graph.AddEdge(d.from, to, d.label)
	}

	if err := b.graph.Validate(); err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}
	return b.graph, nil
}

func newBuilder(opts Options) *builder {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = pyast.DefaultMaxDepth
	}
	calls := opts.IOCalls
	if calls == nil {
		calls = DefaultIOCalls
	}
	io := make(map[string]bool, len(calls))
	for _, c := range calls {
		io[c] = true
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &builder{
		opts:    opts,
		logger:  logger,
		graph:   NewGraph(),
		labels:  make(map[string]string),
		ioCalls: io,
		joins:   make([]join, 1),
	}
}

// block threads stmts starting from cur and sends the loose ends to out.
func (b *builder) block(stmts []pyast.Stmt, cur []pending, out target, depth int) error {
	cur, err := b.sequence(stmts, cur, depth)
	if err != nil {
		return err
	}
	b.link(cur, out)
	return nil
}

// sequence threads stmts one after another and returns the loose ends left
// after the last one. Statements following a return are unreachable and
// are not emitted.
func (b *builder) sequence(stmts []pyast.Stmt, cur []pending, depth int) ([]pending, error) {
	if depth > b.opts.MaxDepth {
		line := 0
		if len(stmts) > 0 {
			line = stmts[0].Pos().Line
		}
		return nil, &LimitError{Depth: depth, Line: line}
	}

	for i, s := range stmts {
		if len(cur) == 0 {
			b.logger.Debug("skipping unreachable statements", "line", s.Pos().Line, "count", len(stmts)-i)
			break
		}
		var err error
		if cur, err = b.stmt(s, cur, depth); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func (b *builder) stmt(s pyast.Stmt, cur []pending, depth int) ([]pending, error) {
	switch s := s.(type) {
	case *pyast.FuncDef:
		id := b.node(s.Name+s.Params, ShapeSubroutine, s.Line)
		b.drafts = append(b.drafts, draft{from: StartID, to: target{node: id}})
		b.hasDefs = true
		if err := b.block(s.Body, []pending{{from: id}}, target{node: EndID}, depth+1); err != nil {
			return nil, err
		}
		// A definition is not executed in place; the enclosing sequence
		// continues from where it was.
		return cur, nil

	case *pyast.If:
		id := b.node("if "+s.Cond, ShapeDecision, s.Line)
		b.link(cur, target{node: id})
		j := b.newJoin(id)
		if err := b.block(s.Then, []pending{{from: id, label: EdgeYes}}, target{join: j}, depth+1); err != nil {
			return nil, err
		}
		if len(s.Else) > 0 {
			elseDepth := depth + 1
			if elif, ok := s.Else[0].(*pyast.If); ok && len(s.Else) == 1 && elif.Elif {
				// An elif sits beside its if in the source.
				elseDepth = depth
			}
			if err := b.block(s.Else, []pending{{from: id, label: EdgeNo}}, target{join: j}, elseDepth); err != nil {
				return nil, err
			}
		} else {
			b.link([]pending{{from: id, label: EdgeNo}}, target{join: j})
		}
		if !b.joins[j].live {
			return nil, nil
		}
		return []pending{{join: j}}, nil

	case *pyast.Loop:
		id := b.node(s.Kind.String()+" "+s.Header, ShapeLoopTest, s.Line)
		b.link(cur, target{node: id})
		if err := b.block(s.Body, []pending{{from: id, label: EdgeYes}}, target{node: id}, depth+1); err != nil {
			return nil, err
		}
		j := b.newJoin(id)
		b.link([]pending{{from: id, label: EdgeNo}}, target{join: j})
		return []pending{{join: j}}, nil

	case *pyast.Call:
		shape := ShapeSubroutine
		if b.ioCalls[s.Func] {
			shape = ShapeInputOutput
		}
		id := b.node(s.Text, shape, s.Line)
		b.link(cur, target{node: id})
		return []pending{{from: id}}, nil

	case *pyast.Return:
		text := "return"
		if s.Value != "" {
			text += " " + s.Value
		}
		id := b.node(text, ShapeTerminator, s.Line)
		b.link(cur, target{node: id})
		b.drafts = append(b.drafts, draft{from: id, to: target{node: EndID}})
		return nil, nil

	case *pyast.Assign:
		id := b.node(strings.Join(s.Targets, " = ")+" "+s.Op+" "+s.Value, ShapeAssignment, s.Line)
		b.link(cur, target{node: id})
		return []pending{{from: id}}, nil

	case *pyast.Block:
		// No rule of its own: walk whatever it nests as if inline.
		b.logger.Debug("descending into unsupported construct", "kind", s.Kind, "line", s.Line)
		return b.sequence(s.Body, cur, depth+1)

	default:
		b.logger.Debug("ignoring statement", "type", fmt.Sprintf("%T", s))
		return cur, nil
	}
}

// node allocates a node, or with Dedup reuses an identical earlier one.
func (b *builder) node(text string, shape Shape, line int) string {
	lbl := label.Sanitize(label.Truncate(text, b.opts.MaxLabelLength))

	key := string(shape) + "\x00" + lbl
	if b.opts.Dedup {
		if id, ok := b.labels[key]; ok {
			return id
		}
	}

	id := fmt.Sprintf("N%d", b.nextID)
	b.nextID++
	b.labels[key] = id
	b.graph.AddNode(Node{ID: id, Label: lbl, Shape: shape, Line: line})
	return id
}

func (b *builder) newJoin(owner string) int {
	b.joins = append(b.joins, join{owner: owner})
	return len(b.joins) - 1
}

// link connects every loose end in cur to t. Edges are drafted; joins in
// cur are bound to t.
func (b *builder) link(cur []pending, t target) {
	for _, p := range cur {
		if p.join != 0 {
			to := t
			b.joins[p.join].bound = &to
		} else {
			b.drafts = append(b.drafts, draft{from: p.from, label: p.label, to: t})
		}
		if t.join != 0 {
			b.joins[t.join].live = true
		}
	}
}

// resolve follows join bindings until it reaches a concrete node.
func (b *builder) resolve(t target) (string, error) {
	for hops := 0; t.join != 0; hops++ {
		j := b.joins[t.join]
		if j.bound == nil {
			return "", &StructuralError{Reason: "unresolved join", NodeID: j.owner}
		}
		if hops > len(b.joins) {
			return "", &StructuralError{Reason: "cyclic join binding", NodeID: j.owner}
		}
		t = *j.bound
	}
	if t.node == "" {
		return "", &StructuralError{Reason: "edge without target"}
	}
	return t.node, nil
}
