package pyast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// DefaultMaxDepth bounds how deeply statement blocks may nest.
const DefaultMaxDepth = 100

var (
	// ErrSyntax is wrapped by every *SyntaxError.
	ErrSyntax = errors.New("syntax error")

	// ErrDepthExceeded is returned when statement nesting exceeds the
	// configured limit.
	ErrDepthExceeded = errors.New("maximum nesting depth exceeded")
)

// SyntaxError reports the first location tree-sitter could not parse.
type SyntaxError struct {
	Line    int
	Column  int
	Snippet string
}

func (e *SyntaxError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("syntax error at line %d, column %d", e.Line, e.Column)
	}
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Snippet)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Options configures Parse.
type Options struct {
	// MaxDepth is the maximum block nesting depth. 0 means DefaultMaxDepth.
	MaxDepth int
}

// Parse parses Python source and lowers it into a Program. A source that
// does not parse cleanly yields a *SyntaxError and no Program.
func Parse(ctx context.Context, src []byte, opts Options) (*Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("parsing source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, newSyntaxError(root, src)
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	l := &lowerer{src: src, maxDepth: maxDepth}
	body, err := l.block(root, 0)
	if err != nil {
		return nil, err
	}
	return &Program{Body: body}, nil
}

// newSyntaxError locates the first ERROR or MISSING node under root.
func newSyntaxError(root *sitter.Node, src []byte) *SyntaxError {
	bad := findError(root)
	if bad == nil {
		bad = root
	}
	p := bad.StartPoint()
	return &SyntaxError{
		Line:    int(p.Row) + 1,
		Column:  int(p.Column) + 1,
		Snippet: sourceLine(src, int(p.Row)),
	}
}

func findError(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing()) {
			continue
		}
		if found := findError(child); found != nil {
			return found
		}
	}
	return nil
}

func sourceLine(src []byte, row int) string {
	lines := strings.Split(string(src), "\n")
	if row < 0 || row >= len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[row])
}

// lowerer converts tree-sitter nodes into Stmt values.
type lowerer struct {
	src      []byte
	maxDepth int
}

// block lowers the statement children of n (a module, block or clause).
func (l *lowerer) block(n *sitter.Node, depth int) ([]Stmt, error) {
	if depth > l.maxDepth {
		p := n.StartPoint()
		return nil, fmt.Errorf("line %d: %w (limit %d)", int(p.Row)+1, ErrDepthExceeded, l.maxDepth)
	}

	var out []Stmt
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		stmts, err := l.stmt(child, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// stmt lowers a single statement node. It returns a slice because a
// transparent construct may contribute nothing.
func (l *lowerer) stmt(n *sitter.Node, depth int) ([]Stmt, error) {
	pos := l.pos(n)

	switch n.Type() {
	case "function_definition":
		body, err := l.field(n, "body", depth)
		if err != nil {
			return nil, err
		}
		return []Stmt{&FuncDef{
			Position: pos,
			Name:     l.text(n.ChildByFieldName("name")),
			Params:   l.text(n.ChildByFieldName("parameters")),
			Async:    hasKeyword(n, "async"),
			Body:     body,
		}}, nil

	case "if_statement":
		s, err := l.ifStmt(n, depth)
		if err != nil {
			return nil, err
		}
		return []Stmt{s}, nil

	case "while_statement":
		return l.loop(n, LoopWhile, l.text(n.ChildByFieldName("condition")), depth)

	case "for_statement":
		header := l.text(n.ChildByFieldName("left")) + " in " + l.text(n.ChildByFieldName("right"))
		return l.loop(n, LoopFor, header, depth)

	case "return_statement":
		var value string
		if n.NamedChildCount() > 0 {
			value = l.text(n.NamedChild(0))
		}
		return []Stmt{&Return{Position: pos, Value: value}}, nil

	case "expression_statement":
		return l.expression(n, pos), nil

	case "block":
		return l.block(n, depth+1)

	default:
		// No rule of its own: keep whatever statements it nests.
		body, err := l.transparent(n, depth)
		if err != nil || len(body) == 0 {
			return nil, err
		}
		return []Stmt{&Block{Position: pos, Kind: n.Type(), Body: body}}, nil
	}
}

// ifStmt lowers an if statement, folding elif clauses into nested Ifs.
func (l *lowerer) ifStmt(n *sitter.Node, depth int) (*If, error) {
	then, err := l.field(n, "consequence", depth)
	if err != nil {
		return nil, err
	}
	root := &If{
		Position: l.pos(n),
		Cond:     l.text(n.ChildByFieldName("condition")),
		Then:     then,
	}

	tail := root
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause == nil {
			continue
		}
		switch clause.Type() {
		case "elif_clause":
			body, err := l.field(clause, "consequence", depth)
			if err != nil {
				return nil, err
			}
			next := &If{
				Position: l.pos(clause),
				Cond:     l.text(clause.ChildByFieldName("condition")),
				Then:     body,
				Elif:     true,
			}
			tail.Else = []Stmt{next}
			tail = next
		case "else_clause":
			body, err := l.field(clause, "body", depth)
			if err != nil {
				return nil, err
			}
			tail.Else = body
		}
	}
	return root, nil
}

// loop lowers while and for statements. A loop else clause has no rule of
// its own and is kept after the loop as a transparent block.
func (l *lowerer) loop(n *sitter.Node, kind LoopKind, header string, depth int) ([]Stmt, error) {
	body, err := l.field(n, "body", depth)
	if err != nil {
		return nil, err
	}
	out := []Stmt{&Loop{Position: l.pos(n), Kind: kind, Header: header, Body: body}}

	if alt := n.ChildByFieldName("alternative"); alt != nil {
		elseBody, err := l.field(alt, "body", depth)
		if err != nil {
			return nil, err
		}
		if len(elseBody) > 0 {
			out = append(out, &Block{Position: l.pos(alt), Kind: alt.Type(), Body: elseBody})
		}
	}
	return out, nil
}

// expression lowers an expression statement into a Call or Assign. Other
// expressions (docstrings, bare names, yields) produce nothing.
func (l *lowerer) expression(n *sitter.Node, pos Position) []Stmt {
	if n.NamedChildCount() == 0 {
		return nil
	}
	expr := n.NamedChild(0)

	switch expr.Type() {
	case "call":
		return []Stmt{&Call{Position: pos, Func: l.text(expr.ChildByFieldName("function")), Text: l.text(expr)}}

	case "await":
		if inner := expr.NamedChild(0); inner != nil && inner.Type() == "call" {
			return []Stmt{&Call{Position: pos, Func: l.text(inner.ChildByFieldName("function")), Text: l.text(expr)}}
		}

	case "assignment":
		if s := l.assignment(expr, pos); s != nil {
			return []Stmt{s}
		}

	case "augmented_assignment":
		return []Stmt{&Assign{
			Position: pos,
			Targets:  []string{l.text(expr.ChildByFieldName("left"))},
			Op:       l.text(expr.ChildByFieldName("operator")),
			Value:    l.text(expr.ChildByFieldName("right")),
		}}
	}
	return nil
}

// assignment unrolls chained assignments (a = b = 1). Bare annotations
// (x: int) carry no value and produce nil.
func (l *lowerer) assignment(n *sitter.Node, pos Position) *Assign {
	s := &Assign{Position: pos, Op: "="}
	for cur := n; cur != nil; {
		right := cur.ChildByFieldName("right")
		if right == nil {
			return nil
		}
		s.Targets = append(s.Targets, l.text(cur.ChildByFieldName("left")))
		if right.Type() != "assignment" {
			s.Value = l.text(right)
			break
		}
		cur = right
	}
	return s
}

// transparent collects the statements nested anywhere below n.
func (l *lowerer) transparent(n *sitter.Node, depth int) ([]Stmt, error) {
	var out []Stmt
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		var (
			stmts []Stmt
			err   error
		)
		if child.Type() == "block" || isStatement(child.Type()) {
			stmts, err = l.stmt(child, depth)
		} else {
			stmts, err = l.transparent(child, depth)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// field lowers the block held in the named field of n.
func (l *lowerer) field(n *sitter.Node, name string, depth int) ([]Stmt, error) {
	body := n.ChildByFieldName(name)
	if body == nil {
		return nil, nil
	}
	return l.block(body, depth+1)
}

func (l *lowerer) pos(n *sitter.Node) Position {
	p := n.StartPoint()
	return Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func (l *lowerer) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start >= uint32(len(l.src)) || end > uint32(len(l.src)) || start > end {
		return ""
	}
	return string(l.src[start:end])
}

func hasKeyword(n *sitter.Node, kw string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil && !child.IsNamed() && child.Type() == kw {
			return true
		}
	}
	return false
}

// isStatement reports whether a tree-sitter node type is a simple or
// compound Python statement.
func isStatement(t string) bool {
	return strings.HasSuffix(t, "_statement") || strings.HasSuffix(t, "_definition")
}
