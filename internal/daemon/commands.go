package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// StartOptions contains options for starting the daemon
type StartOptions struct {
	// DaemonPath is the path to the cflowd executable
	DaemonPath string
	// ConfigPath is passed to cflowd as --config
	ConfigPath string
	// Addr is the listen address handed to cflowd
	Addr string
	// Verbose enables debug logging in the daemon
	Verbose bool
	// WaitForReady indicates whether to wait for the daemon to be ready
	WaitForReady bool
	// ReadyTimeout is the timeout for waiting daemon to be ready
	ReadyTimeout time.Duration
	// Background detaches the daemon from the calling terminal
	Background bool
}

// StartResult contains the result of a start operation
type StartResult struct {
	Success   bool      `json:"success"`
	PID       int       `json:"pid,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Ready     bool      `json:"ready"`
}

// Start launches cflowd and records its PID and address.
func Start(ctx context.Context, opts *StartOptions) (*StartResult, error) {
	if status, err := CheckStatus(ctx, opts.Addr); err == nil && status.Running && status.Ready {
		return &StartResult{
			Success: false,
			PID:     status.PID,
			Error:   "daemon already running",
		}, nil
	}

	daemonPath := opts.DaemonPath
	if daemonPath == "" {
		daemonPath = findDaemonBinary()
	}

	var args []string
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	cmd := exec.Command(daemonPath, args...)
	cmd.Env = os.Environ()
	if opts.Addr != "" {
		cmd.Env = append(cmd.Env, "CFLOW_ADDR="+opts.Addr)
	}
	if opts.Verbose {
		cmd.Env = append(cmd.Env, "CFLOW_LOG_LEVEL=debug")
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if opts.Background {
		detach(cmd)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting daemon: %w", err)
	}

	pid := cmd.Process.Pid
	startedAt := time.Now()

	if err := WritePID(pid); err != nil {
		cmd.Process.Kill()
		return nil, err
	}

	status := &DaemonStatus{Running: true, PID: pid, Addr: opts.Addr, StartedAt: startedAt}
	if err := WriteStatus(status); err != nil {
		cmd.Process.Kill()
		RemovePID()
		return nil, fmt.Errorf("writing status: %w", err)
	}

	result := &StartResult{Success: true, PID: pid, StartedAt: startedAt}
	if !opts.WaitForReady {
		return result, nil
	}

	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = ReadyTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := waitForReady(waitCtx, opts.Addr); err != nil {
		cmd.Process.Kill()
		RemovePID()
		RemoveStatus()
		return &StartResult{
			Success:   false,
			PID:       pid,
			StartedAt: startedAt,
			Error:     fmt.Sprintf("daemon not ready: %v", err),
		}, nil
	}

	status.Ready = true
	WriteStatus(status)
	result.Ready = true
	return result, nil
}

// findDaemonBinary finds the daemon binary path
func findDaemonBinary() string {
	if path := os.Getenv("CFLOW_DAEMON_PATH"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Next to the running cflow binary
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "cflowd")
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}

	exePath := filepath.Join(".", "bin", "cflowd")
	if _, err := os.Stat(exePath); err == nil {
		return exePath
	}

	// Fall back to PATH lookup
	return "cflowd"
}

// waitForReady polls the daemon until it answers or ctx expires.
func waitForReady(ctx context.Context, addr string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if IsRunning(ctx, addr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for daemon to be ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// StopResult contains the result of a stop operation
type StopResult struct {
	Success   bool      `json:"success"`
	PID       int       `json:"pid,omitempty"`
	StoppedAt time.Time `json:"stopped_at"`
	Error     string    `json:"error,omitempty"`
}

// Stop asks the daemon to shut down, killing it if it does not exit in
// time.
func Stop() (*StopResult, error) {
	if !PIDExists() {
		return &StopResult{Error: "daemon not running (no PID file)"}, nil
	}

	pid, err := ReadPID()
	if err != nil {
		return &StopResult{Error: fmt.Sprintf("failed to read PID: %v", err)}, nil
	}

	if !IsProcessRunning(pid) {
		RemovePID()
		RemoveStatus()
		return &StopResult{Error: "daemon not running (process not found)"}, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		RemovePID()
		RemoveStatus()
		return &StopResult{Success: true, PID: pid, StoppedAt: time.Now(), Error: "process already terminated"}, nil
	}

	if err := terminate(process); err == nil && waitForShutdown(pid, ShutdownTimeout) {
		RemovePID()
		RemoveStatus()
		return &StopResult{Success: true, PID: pid, StoppedAt: time.Now()}, nil
	}

	if err := process.Kill(); err != nil {
		return &StopResult{PID: pid, Error: fmt.Sprintf("failed to kill process: %v", err)}, nil
	}
	waitForShutdown(pid, 2*time.Second)

	RemovePID()
	RemoveStatus()
	return &StopResult{Success: true, PID: pid, StoppedAt: time.Now()}, nil
}

// waitForShutdown waits for the process to exit
func waitForShutdown(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

// StatusResult contains the result of a status operation
type StatusResult struct {
	Status    string    `json:"status"`
	Running   bool      `json:"running"`
	Ready     bool      `json:"ready"`
	PID       int       `json:"pid,omitempty"`
	Addr      string    `json:"addr,omitempty"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// GetStatus returns a formatted status result
func GetStatus(ctx context.Context, addr string) (*StatusResult, error) {
	status, err := CheckStatus(ctx, addr)
	if err != nil {
		return &StatusResult{Status: "unknown", Error: err.Error()}, nil
	}

	result := &StatusResult{
		Running:   status.Running,
		Ready:     status.Ready,
		PID:       status.PID,
		Addr:      status.Addr,
		Version:   status.Version,
		StartedAt: status.StartedAt,
		Error:     status.Error,
	}

	switch {
	case !status.Running:
		result.Status = "stopped"
	case !status.Ready:
		result.Status = "starting"
	default:
		result.Status = "running"
	}
	return result, nil
}
