package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindDaemonBinary(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "cflowd")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CFLOW_DAEMON_PATH", bin)
	if got := findDaemonBinary(); got != bin {
		t.Errorf("findDaemonBinary() = %q, want %q", got, bin)
	}

	t.Setenv("CFLOW_DAEMON_PATH", filepath.Join(t.TempDir(), "missing"))
	if got := findDaemonBinary(); got == "" {
		t.Error("findDaemonBinary() should fall back to a name")
	}
}

func TestWaitForReadyTimeout(t *testing.T) {
	useTempDir(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := waitForReady(ctx, "127.0.0.1:1"); err == nil {
		t.Error("Expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("waitForReady did not honor the deadline")
	}
}

func TestWaitForShutdown(t *testing.T) {
	if !waitForShutdown(99999999, 100*time.Millisecond) {
		t.Error("non-existent process should count as shut down")
	}
	if waitForShutdown(os.Getpid(), 100*time.Millisecond) {
		t.Error("current process should not count as shut down")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	useTempDir(t)

	result, err := Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result.Success || result.Error == "" {
		t.Errorf("Expected failure with message, got %+v", result)
	}
}

func TestStartWithMissingBinary(t *testing.T) {
	useTempDir(t)

	_, err := Start(context.Background(), &StartOptions{
		DaemonPath: filepath.Join(t.TempDir(), "no-such-cflowd"),
		Addr:       "127.0.0.1:1",
	})
	if err == nil {
		t.Error("Expected error for missing binary")
	}
	if PIDExists() {
		t.Error("PID file should not be written when start fails")
	}
}

func TestGetStatusStopped(t *testing.T) {
	useTempDir(t)

	result, err := GetStatus(context.Background(), "")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if result.Status != "stopped" {
		t.Errorf("Status = %q, want stopped", result.Status)
	}
}
