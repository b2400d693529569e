// Package flowchart turns Python source into diagrams: parse, build the
// control-flow graph, validate it and serialize it in the requested format.
package flowchart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/pkg/cache"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/dot"
	"github.com/l3aro/codeflow/pkg/label"
	"github.com/l3aro/codeflow/pkg/mermaid"
	"github.com/l3aro/codeflow/pkg/pyast"
)

// Format is an output format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
	FormatSVG     Format = "svg"
	FormatJSON    Format = "json"
)

// Formats lists the supported output formats.
var Formats = []Format{FormatMermaid, FormatDOT, FormatSVG, FormatJSON}

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown format")

// Error kinds reported to clients.
const (
	KindSyntax     = "syntax_error"
	KindLimit      = "limit_exceeded"
	KindStructural = "structural_inconsistency"
	KindFormat     = "unknown_format"
	KindInternal   = "internal_error"
)

// ParseFormat resolves a format name. An empty name means mermaid.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FormatMermaid, nil
	}
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
}

// ErrorKind classifies an error returned by Convert.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, pyast.ErrSyntax):
		return KindSyntax
	case errors.Is(err, cfg.ErrDepthExceeded):
		return KindLimit
	case errors.Is(err, cfg.ErrStructural):
		return KindStructural
	case errors.Is(err, ErrUnknownFormat):
		return KindFormat
	default:
		return KindInternal
	}
}

// Options configures a Converter.
type Options struct {
	Dedup          bool
	MaxDepth       int
	IOCalls        []string
	MaxLabelLength int

	Mermaid mermaid.Options

	// CacheSize bounds the result cache. 0 disables caching.
	CacheSize int

	Logger log.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxDepth:       pyast.DefaultMaxDepth,
		MaxLabelLength: 80,
		Mermaid:        mermaid.DefaultOptions(),
		CacheSize:      256,
	}
}

// Symbol is one statement node of a diagram, for clients that want a
// listing rather than a picture.
type Symbol struct {
	Line   int    `json:"line" msgpack:"line"`
	Text   string `json:"text" msgpack:"text"`
	Symbol string `json:"symbol" msgpack:"symbol"`
}

// Result is a rendered diagram.
type Result struct {
	Format  Format   `json:"format" msgpack:"format"`
	Diagram string   `json:"diagram" msgpack:"diagram"`
	Nodes   int      `json:"nodes" msgpack:"nodes"`
	Edges   int      `json:"edges" msgpack:"edges"`
	Symbols []Symbol `json:"symbols" msgpack:"symbols"`
	Cached  bool     `json:"cached" msgpack:"-"`
}

var symbolNames = map[cfg.Shape]string{
	cfg.ShapeSubroutine:  "Subroutine",
	cfg.ShapeDecision:    "Decision",
	cfg.ShapeLoopTest:    "Loop",
	cfg.ShapeTerminator:  "Terminator",
	cfg.ShapeInputOutput: "InputOutput",
	cfg.ShapeAssignment:  "Process",
}

// symbols lists non-reserved nodes in source order.
func symbols(g *cfg.Graph) []Symbol {
	out := []Symbol{}
	for _, n := range g.Nodes() {
		name, ok := symbolNames[n.Shape]
		if !ok {
			continue
		}
		out = append(out, Symbol{Line: n.Line, Text: label.Unescape(n.Label), Symbol: name})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Converter runs the source-to-diagram pipeline. It is safe for concurrent
// use; every conversion builds its graph independently.
type Converter struct {
	opts        Options
	logger      log.Logger
	cache       *cache.StatsCache[Result]
	fingerprint []byte
}

// New creates a Converter.
func New(opts Options) *Converter {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	c := &Converter{
		opts:   opts,
		logger: logger,
		fingerprint: []byte(fmt.Sprintf("%t|%d|%v|%d|%t|%s",
			opts.Dedup, opts.MaxDepth, opts.IOCalls, opts.MaxLabelLength,
			opts.Mermaid.Header, opts.Mermaid.Direction)),
	}
	if opts.CacheSize > 0 {
		c.cache = cache.NewStatsCache(cache.Options[Result]{
			MaxSize: opts.CacheSize,
			SizeOf:  func(r Result) int { return len(r.Diagram) },
		})
	}
	return c
}

// Graph parses src and builds its validated control-flow graph.
func (c *Converter) Graph(ctx context.Context, src []byte) (*cfg.Graph, error) {
	prog, err := pyast.Parse(ctx, src, pyast.Options{MaxDepth: c.opts.MaxDepth})
	if err != nil {
		return nil, err
	}
	return cfg.Build(prog, cfg.Options{
		Dedup:          c.opts.Dedup,
		MaxDepth:       c.opts.MaxDepth,
		IOCalls:        c.opts.IOCalls,
		MaxLabelLength: c.opts.MaxLabelLength,
		Logger:         c.logger,
	})
}

// Convert renders src in the given format. Identical requests are served
// from the cache.
func (c *Converter) Convert(ctx context.Context, src []byte, format Format) (*Result, error) {
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}

	key := cache.Key(src, []byte(format), c.fingerprint)
	if c.cache != nil {
		if r, ok := c.cache.Get(key); ok {
			r.Cached = true
			return &r, nil
		}
	}

	start := time.Now()
	g, err := c.Graph(ctx, src)
	if err != nil {
		return nil, err
	}

	text, err := c.render(ctx, g, format)
	if err != nil {
		return nil, err
	}

	r := Result{
		Format:  format,
		Diagram: text,
		Nodes:   len(g.Nodes()),
		Edges:   len(g.Edges()),
		Symbols: symbols(g),
	}
	c.logger.Debug("converted source", "format", format, "nodes", r.Nodes, "edges", r.Edges,
		"elapsed", time.Since(start))

	if c.cache != nil {
		c.cache.Set(key, r)
	}
	return &r, nil
}

func (c *Converter) render(ctx context.Context, g *cfg.Graph, format Format) (string, error) {
	switch format {
	case FormatMermaid:
		return mermaid.Render(g, c.opts.Mermaid), nil
	case FormatDOT:
		return dot.ToDOT(g, c.dotOptions()), nil
	case FormatSVG:
		svg, err := dot.RenderSVG(ctx, dot.ToDOT(g, c.dotOptions()))
		if err != nil {
			return "", fmt.Errorf("rendering svg: %w", err)
		}
		return string(svg), nil
	case FormatJSON:
		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding graph: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}

func (c *Converter) dotOptions() dot.Options {
	switch c.opts.Mermaid.Direction {
	case "LR", "RL", "BT":
		return dot.Options{RankDir: c.opts.Mermaid.Direction}
	default:
		return dot.Options{RankDir: "TB"}
	}
}

// Fingerprint identifies the options that shape a diagram. Two converters
// with equal fingerprints render the same source identically.
func (c *Converter) Fingerprint() []byte {
	return append([]byte(nil), c.fingerprint...)
}

// CacheStats reports result cache usage. It is zero when caching is off.
func (c *Converter) CacheStats() cache.Stats {
	if c.cache == nil {
		return cache.Stats{}
	}
	return c.cache.Stats()
}

// SaveCache writes the result cache to path.
func (c *Converter) SaveCache(path string) error {
	if c.cache == nil || path == "" {
		return nil
	}
	if err := cache.PersistToFile(c.cache, path); err != nil {
		return err
	}
	c.logger.Debug("saved result cache", "path", path, "entries", c.cache.Len())
	return nil
}

// LoadCache restores the result cache from path. A missing file leaves the
// cache empty.
func (c *Converter) LoadCache(path string) error {
	if c.cache == nil || path == "" {
		return nil
	}
	if err := cache.LoadFromFile(c.cache, path); err != nil {
		return err
	}
	c.logger.Debug("loaded result cache", "path", path, "entries", c.cache.Len())
	return nil
}
