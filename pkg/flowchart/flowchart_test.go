package flowchart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/pyast"
)

const sample = "def f(x):\n    return x\n"

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMermaid, false},
		{"mermaid", FormatMermaid, false},
		{" DOT ", FormatDOT, false},
		{"svg", FormatSVG, false},
		{"json", FormatJSON, false},
		{"png", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvert_Mermaid(t *testing.T) {
	c := New(DefaultOptions())

	r, err := c.Convert(context.Background(), []byte(sample), FormatMermaid)
	require.NoError(t, err)

	assert.Equal(t, FormatMermaid, r.Format)
	assert.Equal(t, 4, r.Nodes)
	assert.Equal(t, 3, r.Edges)
	assert.False(t, r.Cached)
	assert.True(t, strings.HasPrefix(r.Diagram, "flowchart TD\nStart[\"Start\"]\n"))
	assert.Contains(t, r.Diagram, "N0 --> N1\n")
}

func TestConvert_Symbols(t *testing.T) {
	src := "def greet(name):\n    if name:\n        print(name)\n    return None\n"
	r, err := New(DefaultOptions()).Convert(context.Background(), []byte(src), FormatMermaid)
	require.NoError(t, err)

	assert.Equal(t, []Symbol{
		{Line: 1, Text: "greet(name)", Symbol: "Subroutine"},
		{Line: 2, Text: "if name", Symbol: "Decision"},
		{Line: 3, Text: "print(name)", Symbol: "InputOutput"},
		{Line: 4, Text: "return None", Symbol: "Terminator"},
	}, r.Symbols)
}

func TestConvert_DefaultFormat(t *testing.T) {
	c := New(DefaultOptions())
	r, err := c.Convert(context.Background(), []byte(""), "")
	require.NoError(t, err)
	assert.Equal(t, FormatMermaid, r.Format)
	assert.Contains(t, r.Diagram, "Start --> End\n")
}

func TestConvert_DOT(t *testing.T) {
	c := New(DefaultOptions())
	r, err := c.Convert(context.Background(), []byte(sample), FormatDOT)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.Diagram, "digraph G {"))
	assert.Contains(t, r.Diagram, `"N0" -> "N1";`)
}

func TestConvert_JSON(t *testing.T) {
	c := New(DefaultOptions())
	r, err := c.Convert(context.Background(), []byte(sample), FormatJSON)
	require.NoError(t, err)

	var decoded struct {
		Nodes []cfg.Node `json:"nodes"`
		Edges []cfg.Edge `json:"edges"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.Diagram), &decoded))
	require.Len(t, decoded.Nodes, 4)
	assert.Equal(t, "f(x)", decoded.Nodes[1].Label)
	assert.Equal(t, cfg.ShapeSubroutine, decoded.Nodes[1].Shape)
}

func TestConvert_Errors(t *testing.T) {
	c := New(DefaultOptions())
	ctx := context.Background()

	_, err := c.Convert(ctx, []byte("def f(:"), FormatMermaid)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pyast.ErrSyntax))
	assert.Equal(t, KindSyntax, ErrorKind(err))

	_, err = c.Convert(ctx, []byte(sample), Format("png"))
	assert.Equal(t, KindFormat, ErrorKind(err))

	var sb strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&sb, "%sif x:\n", strings.Repeat("    ", i))
	}
	sb.WriteString(strings.Repeat("    ", 6) + "y = 1\n")

	opts := DefaultOptions()
	opts.MaxDepth = 3
	_, err = New(opts).Convert(ctx, []byte(sb.String()), FormatMermaid)
	require.Error(t, err)
	assert.Equal(t, KindLimit, ErrorKind(err))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, KindStructural, ErrorKind(fmt.Errorf("wrapped: %w", &cfg.StructuralError{Reason: "x"})))
	assert.Equal(t, KindLimit, ErrorKind(&cfg.LimitError{Depth: 5}))
	assert.Equal(t, KindInternal, ErrorKind(errors.New("boom")))
}

func TestConvert_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultOptions()).Convert(ctx, []byte(sample), FormatMermaid)
	assert.Error(t, err)
}

func TestConvert_Cache(t *testing.T) {
	c := New(DefaultOptions())
	ctx := context.Background()

	first, err := c.Convert(ctx, []byte(sample), FormatMermaid)
	require.NoError(t, err)
	second, err := c.Convert(ctx, []byte(sample), FormatMermaid)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Diagram, second.Diagram)

	_, err = c.Convert(ctx, []byte(sample), FormatDOT)
	require.NoError(t, err)

	stats := c.CacheStats()
	assert.Equal(t, 2, stats.Length)
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(2), stats.MissCount)
}

func TestConvert_CacheDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.CacheSize = 0
	c := New(opts)

	for i := 0; i < 2; i++ {
		r, err := c.Convert(context.Background(), []byte(sample), FormatMermaid)
		require.NoError(t, err)
		assert.False(t, r.Cached)
	}
	assert.Zero(t, c.CacheStats())
	assert.NoError(t, c.SaveCache(filepath.Join(t.TempDir(), "c")))
}

func TestConverter_CachePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.msgpack")
	ctx := context.Background()

	c := New(DefaultOptions())
	want, err := c.Convert(ctx, []byte(sample), FormatMermaid)
	require.NoError(t, err)
	require.NoError(t, c.SaveCache(path))

	warm := New(DefaultOptions())
	require.NoError(t, warm.LoadCache(path))
	got, err := warm.Convert(ctx, []byte(sample), FormatMermaid)
	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.Equal(t, want.Diagram, got.Diagram)

	// Different options never see another configuration's results.
	opts := DefaultOptions()
	opts.Dedup = true
	other := New(opts)
	require.NoError(t, other.LoadCache(path))
	got, err = other.Convert(ctx, []byte(sample), FormatMermaid)
	require.NoError(t, err)
	assert.False(t, got.Cached)
}

func TestConvert_Concurrent(t *testing.T) {
	c := New(DefaultOptions())
	sources := []string{
		sample,
		"x = 1\nwhile x < 10:\n    x += 1\nprint(x)\n",
		"if a:\n    b()\nelse:\n    c()\n",
	}

	uncached := DefaultOptions()
	uncached.CacheSize = 0
	want := make([]string, len(sources))
	for i, s := range sources {
		r, err := New(uncached).Convert(context.Background(), []byte(s), FormatMermaid)
		require.NoError(t, err)
		want[i] = r.Diagram
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, s := range sources {
				r, err := c.Convert(context.Background(), []byte(s), FormatMermaid)
				if assert.NoError(t, err) {
					assert.Equal(t, want[i], r.Diagram)
				}
			}
		}()
	}
	wg.Wait()
}
