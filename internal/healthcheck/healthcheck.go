package healthcheck

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/dot"
	"github.com/l3aro/codeflow/pkg/pyast"
)

// Component statuses.
const (
	StatusReady   = "ready"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// probeSource exercises every statement kind the builder knows.
const probeSource = `def probe(n):
    total = 0
    while n > 0:
        if n % 2:
            total += n
        n -= 1
    print(total)
    return total
`

// ComponentStatus is the health of one part of the toolchain.
type ComponentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string          `json:"saved_path,omitempty"`
	SavedScope     string          `json:"saved_scope,omitempty"` // "global" or "project"
	EffectivePath  string          `json:"effective_path,omitempty"`
	EffectiveScope string          `json:"effective_scope,omitempty"`
	Parser         ComponentStatus `json:"parser"`
	Renderer       ComponentStatus `json:"renderer"`
	Cache          ComponentStatus `json:"cache"`
	Service        ComponentStatus `json:"service"`
}

// OK reports whether no component is in error.
func (r *HealthCheckResult) OK() bool {
	for _, c := range []ComponentStatus{r.Parser, r.Renderer, r.Cache, r.Service} {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
// The service probe only runs when probeService is set.
func Check(ctx context.Context, c *config.Config, savedPath, effectivePath string, probeService bool) (*HealthCheckResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Parser = CheckParser(ctx)
	result.Renderer = CheckRenderer(ctx)
	result.Cache = CheckCache(c.CachePath)
	if probeService {
		result.Service = CheckService(ctx, c.Addr)
	} else {
		result.Service = ComponentStatus{Name: "service", Status: StatusSkipped}
	}

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".cflow")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// CheckParser parses and builds a small program end to end.
func CheckParser(ctx context.Context) ComponentStatus {
	status := ComponentStatus{Name: "parser"}

	prog, err := pyast.Parse(ctx, []byte(probeSource), pyast.Options{})
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	g, err := cfg.Build(prog, cfg.Options{})
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}

	status.Status = StatusReady
	status.Detail = fmt.Sprintf("tree-sitter python, probe graph %d nodes", len(g.Nodes()))
	return status
}

// CheckRenderer renders a trivial graph to SVG with the embedded Graphviz.
func CheckRenderer(ctx context.Context) ComponentStatus {
	status := ComponentStatus{Name: "renderer"}

	g := cfg.NewGraph()
	g.AddNode(cfg.Node{ID: cfg.StartID, Label: "Start", Shape: cfg.ShapeStart})
	g.AddNode(cfg.Node{ID: cfg.EndID, Label: "End", Shape: cfg.ShapeEnd})
	g.AddEdge(cfg.StartID, cfg.EndID, cfg.EdgeNone)

	svg, err := dot.RenderSVG(ctx, dot.ToDOT(g, dot.Options{}))
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}

	status.Status = StatusReady
	status.Detail = fmt.Sprintf("graphviz svg, %d bytes", len(svg))
	return status
}

// CheckCache verifies the cache file's directory is writable. An empty
// path means the cache lives in memory only.
func CheckCache(path string) ComponentStatus {
	status := ComponentStatus{Name: "cache"}
	if path == "" {
		status.Status = StatusSkipped
		status.Detail = "in-memory only"
		return status
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("cannot create %s: %v", dir, err)
		return status
	}
	f, err := os.CreateTemp(dir, ".cflow-probe-*")
	if err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("%s is not writable: %v", dir, err)
		return status
	}
	f.Close()
	os.Remove(f.Name())

	status.Status = StatusReady
	status.Detail = path
	return status
}

// CheckService calls GET /healthz on a running service.
func CheckService(ctx context.Context, addr string) ComponentStatus {
	status := ComponentStatus{Name: "service", Detail: addr}

	url := BaseURL(addr) + "/healthz"

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("invalid address: %v", err)
		return status
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("cannot reach service at %s: %v", addr, err)
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		status.Status = StatusReady
	} else {
		status.Status = StatusError
		status.Error = fmt.Sprintf("service returned status %d", resp.StatusCode)
	}

	return status
}

// BaseURL turns a listen address such as ":10000" or "0.0.0.0:80" into a
// URL a local client can dial.
func BaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
