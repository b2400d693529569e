// Package pyast defines the statement tree consumed by the flowchart builder
// and lowers tree-sitter Python syntax trees into it.
//
// The statement set is closed: every concrete statement type implements the
// unexported stmt marker, so switches over Stmt only need a default arm for
// Block, the transparent wrapper used for constructs without their own
// flowchart rule.
package pyast

// Position locates a statement in the source (1-based line and column).
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Stmt is a statement node. The set of implementations is closed to this
// package.
type Stmt interface {
	Pos() Position
	stmt()
}

// Program is the root of a parsed module.
type Program struct {
	Body []Stmt
}

// FuncDef is a function definition.
type FuncDef struct {
	Position
	Name   string
	Params string // parameter list as written, including parentheses
	Async  bool
	Body   []Stmt
}

// If is a conditional. Elif chains are lowered into nested Ifs held as the
// sole statement of Else, with Elif set so they do not count as nesting.
type If struct {
	Position
	Cond string
	Then []Stmt
	Else []Stmt
	Elif bool
}

// LoopKind distinguishes the two loop statements.
type LoopKind int

const (
	LoopWhile LoopKind = iota
	LoopFor
)

func (k LoopKind) String() string {
	if k == LoopFor {
		return "for"
	}
	return "while"
}

// Loop is a while or for loop. Header holds the condition for while loops
// and "<target> in <iterable>" for for loops.
type Loop struct {
	Position
	Kind   LoopKind
	Header string
	Body   []Stmt
}

// Call is an expression statement whose expression is a call.
type Call struct {
	Position
	Func string // callee as written, e.g. "print" or "os.path.join"
	Text string // whole call expression
}

// Return is a return statement; Value is empty for a bare return.
type Return struct {
	Position
	Value string
}

// Assign is a plain, chained, annotated or augmented assignment.
type Assign struct {
	Position
	Targets []string // left-hand sides, outermost first
	Op      string   // "=" or an augmented operator such as "+="
	Value   string
}

// Block wraps statements nested inside a construct with no flowchart rule
// of its own (with, try, class, match, ...). The builder descends into Body
// as if the statements appeared inline.
type Block struct {
	Position
	Kind string // tree-sitter node type of the wrapper
	Body []Stmt
}

func (p Position) Pos() Position { return p }

func (*FuncDef) stmt() {}
func (*If) stmt()      {}
func (*Loop) stmt()    {}
func (*Call) stmt()    {}
func (*Return) stmt()  {}
func (*Assign) stmt()  {}
func (*Block) stmt()   {}
