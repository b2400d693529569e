// Package cfg defines the control-flow graph produced from a parsed program
// and the builder that constructs it.
package cfg

// Shape is the flowchart symbol a node is drawn with.
type Shape string

const (
	ShapeStart       Shape = "start"        // Sole entry node
	ShapeEnd         Shape = "end"          // Sole exit node
	ShapeSubroutine  Shape = "subroutine"   // Function definition or plain call
	ShapeDecision    Shape = "decision"     // if / elif test
	ShapeLoopTest    Shape = "loop_test"    // while / for header
	ShapeTerminator  Shape = "terminator"   // return statement
	ShapeInputOutput Shape = "input_output" // Interactive call such as print or input
	ShapeAssignment  Shape = "assignment"   // Assignment statement
)

// EdgeLabel marks the branch outcome an edge represents.
type EdgeLabel string

const (
	EdgeNone EdgeLabel = ""
	EdgeYes  EdgeLabel = "Yes"
	EdgeNo   EdgeLabel = "No"
)

// Reserved node ids.
const (
	StartID = "Start"
	EndID   = "End"
)

// Node is a vertex of the graph.
type Node struct {
	ID    string `json:"id"`             // Unique identifier
	Label string `json:"label"`          // Sanitized display text
	Shape Shape  `json:"shape"`          // Flowchart symbol
	Line  int    `json:"line,omitempty"` // Source line, 0 for Start and End
}

// Edge is a directed connection between two nodes.
type Edge struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Label EdgeLabel `json:"label,omitempty"`
}
