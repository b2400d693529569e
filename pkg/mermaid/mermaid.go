// Package mermaid serializes control-flow graphs as Mermaid flowcharts.
package mermaid

import (
	"fmt"
	"strings"

	"github.com/l3aro/codeflow/pkg/cfg"
)

// DefaultDirection is the flow direction used when Options.Direction is empty.
const DefaultDirection = "TD"

var directions = map[string]bool{"TD": true, "TB": true, "BT": true, "LR": true, "RL": true}

// shapeKeywords maps node shapes to Mermaid shape names.
var shapeKeywords = map[cfg.Shape]string{
	cfg.ShapeStart:       "circle",
	cfg.ShapeEnd:         "dbl-circ",
	cfg.ShapeSubroutine:  "subproc",
	cfg.ShapeDecision:    "diam",
	cfg.ShapeLoopTest:    "hex",
	cfg.ShapeTerminator:  "stadium",
	cfg.ShapeInputOutput: "lean-r",
	cfg.ShapeAssignment:  "rect",
}

// Options controls the document framing. The three body blocks are fixed.
type Options struct {
	// Header emits a leading "flowchart <Direction>" line.
	Header    bool
	Direction string
}

// DefaultOptions returns options with the header on, top-down.
func DefaultOptions() Options {
	return Options{Header: true, Direction: DefaultDirection}
}

// ValidDirection reports whether d is a Mermaid flowchart direction.
func ValidDirection(d string) bool {
	return directions[d]
}

// ShapeKeyword returns the Mermaid shape name for s.
func ShapeKeyword(s cfg.Shape) string {
	if kw, ok := shapeKeywords[s]; ok {
		return kw
	}
	return "rect"
}

// Render writes g as node declarations, then edges, then shape annotations,
// each block in insertion order. Labels are written as-is; they are
// expected to be sanitized already. With opts.Header a `flowchart <dir>`
// line precedes the three blocks; it is not part of them, and turning it
// off leaves exactly the three blocks.
func Render(g *cfg.Graph, opts Options) string {
	var sb strings.Builder

	if opts.Header {
		dir := opts.Direction
		if dir == "" {
			dir = DefaultDirection
		}
		sb.WriteString("flowchart " + dir + "\n")
	}

	for _, n := range g.Nodes() {
		fmt.Fprintf(&sb, "%s[\"%s\"]\n", n.ID, n.Label)
	}

	for _, e := range g.Edges() {
		if e.Label != cfg.EdgeNone {
			fmt.Fprintf(&sb, "%s -->|%s|%s\n", e.From, e.Label, e.To)
		} else {
			fmt.Fprintf(&sb, "%s --> %s\n", e.From, e.To)
		}
	}

	for _, n := range g.Nodes() {
		fmt.Fprintf(&sb, "%s@{ shape: %s }\n", n.ID, ShapeKeyword(n.Shape))
	}

	return sb.String()
}
