package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/healthcheck"
	"github.com/l3aro/codeflow/internal/scanner"
	"github.com/l3aro/codeflow/pkg/client"
	"github.com/l3aro/codeflow/pkg/dirty"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/mermaid"
	"github.com/l3aro/codeflow/pkg/pyast"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render <file|dir|->",
	Short: "Render Python sources as diagrams",
	Long: `Parses a Python file (or stdin with "-") and prints its control-flow
diagram. Formats: mermaid (default), dot, svg, json.

Given a directory, every Python file below it (minus .cflowignore matches)
is rendered into --output-dir, mirroring the source layout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyRenderFlags(cmd, cfg); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		asJSON, _ := cmd.Flags().GetBool("json")
		output, _ := cmd.Flags().GetString("output")
		outDir, _ := cmd.Flags().GetString("output-dir")

		local := flowchart.New(cfg.ConverterOptions(nil))
		var conv converter = local
		if remote, _ := cmd.Flags().GetBool("remote"); remote {
			c := client.New(healthcheck.BaseURL(cfg.Addr), client.WithTimeout(cfg.RequestTimeout))
			conv = client.NewRouter(c, local, client.WithAutoDetect())
		}

		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			if outDir == "" {
				return fmt.Errorf("rendering a directory requires --output-dir")
			}
			opts := scanner.DefaultOptions()
			opts.MaxFileSize = cfg.MaxSourceBytes
			incremental, _ := cmd.Flags().GetBool("incremental")
			return runRenderDir(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), conv, dirRender{
				Scanner:     scanner.New(opts),
				Root:        args[0],
				OutDir:      outDir,
				Format:      format,
				Incremental: incremental,
				Salt:        local.Fingerprint(),
			})
		}

		src, err := readSource(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		return runRender(cmd.Context(), w, cmd.ErrOrStderr(), conv, src, format, asJSON)
	},
}

// applyRenderFlags overlays explicitly set flags onto cfg.
func applyRenderFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("dedup") {
		cfg.Dedup, _ = flags.GetBool("dedup")
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("direction") {
		d, _ := flags.GetString("direction")
		cfg.Direction = strings.ToUpper(d)
	}
	if flags.Changed("no-header") {
		noHeader, _ := flags.GetBool("no-header")
		cfg.Header = !noHeader
	}
	// one-shot renders never reuse results
	cfg.CacheSize = 0
	if !mermaid.ValidDirection(cfg.Direction) {
		return fmt.Errorf("invalid direction %q", cfg.Direction)
	}
	return cfg.Validate()
}

func readSource(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// converter is satisfied by the local pipeline and by the service router.
type converter interface {
	Convert(ctx context.Context, src []byte, format flowchart.Format) (*flowchart.Result, error)
}

func runRender(ctx context.Context, w, errw io.Writer, conv converter, src []byte, format string, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := conv.Convert(ctx, src, flowchart.Format(format))
	if err != nil {
		var se *pyast.SyntaxError
		var apiErr *client.APIError
		switch {
		case errors.As(err, &se):
			fmt.Fprintf(errw, "%d:%d: %s\n", se.Line, se.Column, se.Snippet)
		case errors.As(err, &apiErr) && apiErr.Line > 0:
			fmt.Fprintf(errw, "%d:%d: %s\n", apiErr.Line, apiErr.Column, apiErr.Message)
		}
		return fmt.Errorf("%s: %w", flowchart.ErrorKind(err), err)
	}

	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling result: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	io.WriteString(w, result.Diagram)
	if result.Diagram != "" && !strings.HasSuffix(result.Diagram, "\n") {
		io.WriteString(w, "\n")
	}
	return nil
}

// fileExtensions names the file written per format by directory renders.
var fileExtensions = map[flowchart.Format]string{
	flowchart.FormatMermaid: ".mmd",
	flowchart.FormatDOT:     ".dot",
	flowchart.FormatSVG:     ".svg",
	flowchart.FormatJSON:    ".json",
}

// dirRender describes one directory render.
type dirRender struct {
	Scanner *scanner.Scanner
	Root    string
	OutDir  string
	Format  string
	// Incremental skips sources unchanged since the manifest in OutDir
	// was written and removes diagrams whose source is gone.
	Incremental bool
	// Salt is mixed into change detection so new options force a render.
	Salt []byte
}

// runRenderDir renders every scanned file under d.Root into d.OutDir. A
// file that fails is reported and skipped; the walk still finishes.
func runRenderDir(ctx context.Context, w, errw io.Writer, conv converter, d dirRender) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := flowchart.ParseFormat(d.Format)
	if err != nil {
		return fmt.Errorf("%s: %w", flowchart.KindFormat, err)
	}

	files, err := d.Scanner.Scan(d.Root)
	if err != nil {
		return err
	}

	manifestPath := filepath.Join(d.OutDir, dirty.ManifestFile)
	tracker := dirty.New()
	if d.Incremental {
		if tracker, err = dirty.LoadFile(manifestPath); err != nil {
			return err
		}
	}

	rendered, skipped, failed := 0, 0, 0
	for _, file := range files {
		src, err := os.ReadFile(file.FullPath)
		if err != nil {
			fmt.Fprintf(errw, "%s: %v\n", file.Path, err)
			failed++
			continue
		}

		hash := dirty.Hash(src, []byte(f), d.Salt)
		if !tracker.IsDirty(file.Path, hash) {
			skipped++
			continue
		}

		result, err := conv.Convert(ctx, src, f)
		if err != nil {
			fmt.Fprintf(errw, "%s: %s: %v\n", file.Path, flowchart.ErrorKind(err), err)
			failed++
			continue
		}

		dest := filepath.Join(d.OutDir, filepath.FromSlash(strings.TrimSuffix(file.Path, filepath.Ext(file.Path))+fileExtensions[f]))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(dest, []byte(result.Diagram), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		tracker.Record(file.Path, hash, dest)
		rendered++
		fmt.Fprintf(w, "%s -> %s\n", file.Path, dest)
	}

	if d.Incremental {
		for _, stale := range tracker.Prune() {
			if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(errw, "removing %s: %v\n", stale, err)
			}
		}
		if err := tracker.SaveFile(manifestPath); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "Rendered %d of %d files", rendered, len(files))
	if skipped > 0 {
		fmt.Fprintf(w, " (%d unchanged)", skipped)
	}
	fmt.Fprintln(w)
	if failed > 0 {
		return fmt.Errorf("%d files failed to render", failed)
	}
	return nil
}

func init() {
	renderCmd.Flags().StringP("format", "f", "mermaid", "Output format: mermaid, dot, svg, json")
	renderCmd.Flags().Bool("dedup", false, "Merge nodes with identical labels")
	renderCmd.Flags().Int("max-depth", 0, "Maximum block nesting depth")
	renderCmd.Flags().String("direction", "", "Flowchart direction: TD, TB, BT, LR, RL")
	renderCmd.Flags().Bool("no-header", false, "Omit the flowchart header line")
	renderCmd.Flags().StringP("output", "o", "", "Write the diagram to a file")
	renderCmd.Flags().String("output-dir", "", "Directory for diagrams when rendering a directory")
	renderCmd.Flags().Bool("incremental", false, "Only re-render directory sources that changed")
	renderCmd.Flags().BoolP("json", "j", false, "Output the full result as JSON")
	renderCmd.Flags().Bool("remote", false, "Render on the running service with its settings, falling back to in-process")
	RootCmd.AddCommand(renderCmd)
}
