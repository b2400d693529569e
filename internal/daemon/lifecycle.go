// Package daemon manages a background cflowd process: PID and status
// files, readiness probing over HTTP, and start/stop/status commands.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/l3aro/codeflow/internal/healthcheck"
)

const (
	// DefaultDir is the default directory for daemon files
	DefaultDir = ".cflow"
	// PIDFileName is the name of the PID file
	PIDFileName = "cflowd.pid"
	// StatusFileName is the name of the status file
	StatusFileName = "cflowd.status"
	// ReadyTimeout is the timeout for waiting daemon to be ready
	ReadyTimeout = 10 * time.Second
	// ShutdownTimeout is the timeout for waiting daemon to shutdown
	ShutdownTimeout = 5 * time.Second
)

// DaemonDir returns the path to the daemon directory
func DaemonDir() string {
	if dir := os.Getenv("CFLOW_DAEMON_DIR"); dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return DefaultDir
	}
	return filepath.Join(cwd, DefaultDir)
}

// PIDFile returns the path to the PID file
func PIDFile() string {
	return filepath.Join(DaemonDir(), PIDFileName)
}

// StatusFile returns the path to the status file
func StatusFile() string {
	return filepath.Join(DaemonDir(), StatusFileName)
}

func ensureDaemonDir() error {
	dir := DaemonDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating daemon directory: %w", err)
	}
	return nil
}

// WritePID writes the PID to the PID file
func WritePID(pid int) error {
	if err := ensureDaemonDir(); err != nil {
		return err
	}
	if err := os.WriteFile(PIDFile(), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	return nil
}

// ReadPID reads the PID from the PID file
func ReadPID() (int, error) {
	data, err := os.ReadFile(PIDFile())
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing PID: %w", err)
	}
	return pid, nil
}

// RemovePID removes the PID file
func RemovePID() error {
	if err := os.Remove(PIDFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file: %w", err)
	}
	return nil
}

// PIDExists checks if the PID file exists.
func PIDExists() bool {
	_, err := os.Stat(PIDFile())
	return err == nil
}

// DaemonStatus represents the status of the daemon
type DaemonStatus struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	Ready     bool      `json:"ready"`
	Addr      string    `json:"addr,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Error     string    `json:"error,omitempty"`
	Version   string    `json:"version,omitempty"`
}

// WriteStatus writes the status to the status file
func WriteStatus(status *DaemonStatus) error {
	if err := ensureDaemonDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	if err := os.WriteFile(StatusFile(), data, 0644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return nil
}

// ReadStatus reads the status from the status file
func ReadStatus() (*DaemonStatus, error) {
	data, err := os.ReadFile(StatusFile())
	if err != nil {
		return nil, fmt.Errorf("reading status file: %w", err)
	}
	var status DaemonStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}
	return &status, nil
}

// RemoveStatus removes the status file
func RemoveStatus() error {
	if err := os.Remove(StatusFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing status file: %w", err)
	}
	return nil
}

// ping asks the service at addr for its health.
func ping(ctx context.Context, addr string) (*DaemonStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthcheck.BaseURL(addr)+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &DaemonStatus{
		Running: true,
		Ready:   resp.StatusCode == http.StatusOK,
		Addr:    addr,
		Version: body.Version,
	}, nil
}

// CheckStatus checks the daemon status. addr overrides the address
// recorded in the status file.
func CheckStatus(ctx context.Context, addr string) (*DaemonStatus, error) {
	if !PIDExists() {
		return &DaemonStatus{}, nil
	}

	pid, err := ReadPID()
	if err != nil {
		return &DaemonStatus{Error: fmt.Sprintf("failed to read PID: %v", err)}, nil
	}

	if !IsProcessRunning(pid) {
		// Stale files from a crashed daemon.
		RemovePID()
		RemoveStatus()
		return &DaemonStatus{}, nil
	}

	recorded, _ := ReadStatus()
	if addr == "" && recorded != nil {
		addr = recorded.Addr
	}
	if addr == "" {
		return &DaemonStatus{Running: true, PID: pid, Error: "daemon address unknown"}, nil
	}

	status, err := ping(ctx, addr)
	if err != nil {
		return &DaemonStatus{
			Running: true,
			PID:     pid,
			Addr:    addr,
			Error:   fmt.Sprintf("daemon not responding: %v", err),
		}, nil
	}

	status.PID = pid
	if recorded != nil {
		status.StartedAt = recorded.StartedAt
	}
	return status, nil
}

// IsRunning checks if the daemon is currently running and ready
func IsRunning(ctx context.Context, addr string) bool {
	status, err := CheckStatus(ctx, addr)
	return err == nil && status.Running && status.Ready
}
