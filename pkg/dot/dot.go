// Package dot exports control-flow graphs as Graphviz documents.
package dot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/label"
)

var shapes = map[cfg.Shape]string{
	cfg.ShapeStart:       "circle",
	cfg.ShapeEnd:         "doublecircle",
	cfg.ShapeSubroutine:  "box",
	cfg.ShapeDecision:    "diamond",
	cfg.ShapeLoopTest:    "hexagon",
	cfg.ShapeTerminator:  "box",
	cfg.ShapeInputOutput: "parallelogram",
	cfg.ShapeAssignment:  "box",
}

// Options configures DOT output.
type Options struct {
	// RankDir is the Graphviz rankdir (TB, LR, ...). Empty means TB.
	RankDir string
}

// ToDOT converts g to a Graphviz digraph. Nodes and edges keep insertion
// order so the output is deterministic.
func ToDOT(g *cfg.Graph, opts Options) string {
	rankdir := opts.RankDir
	if rankdir == "" {
		rankdir = "TB"
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	fmt.Fprintf(&buf, "  rankdir=%s;\n", rankdir)
	buf.WriteString("  node [fontname=\"Helvetica\", fontsize=12];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(fmtAttrs(n), ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		if e.Label != cfg.EdgeNone {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From, e.To, string(e.Label))
		} else {
			fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtAttrs(n cfg.Node) []string {
	shape, ok := shapes[n.Shape]
	if !ok {
		shape = "box"
	}
	attrs := []string{
		fmt.Sprintf("label=%q", label.Unescape(n.Label)),
		"shape=" + shape,
	}
	switch n.Shape {
	case cfg.ShapeSubroutine:
		attrs = append(attrs, "peripheries=2")
	case cfg.ShapeTerminator:
		attrs = append(attrs, "style=rounded")
	}
	return attrs
}

// RenderSVG renders a DOT document to SVG in-process.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
