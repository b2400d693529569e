// Package main implements the codeflow CLI (cflow).
// It renders Python control flow as diagrams, runs the HTTP service and
// manages the background daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/l3aro/codeflow/cmd/cflow/commands"
	"github.com/l3aro/codeflow/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.Version = version

	// Add start command
	startCmd := &cobra.Command{
		Use:   "start [flags]",
		Short: "Start the background service",
		RunE: func(cmd *cobra.Command, args []string) error {
			daemonPath, _ := cmd.Flags().GetString("daemon")
			addr, _ := cmd.Flags().GetString("addr")
			configPath, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")
			background, _ := cmd.Flags().GetBool("d")
			return runStart(cmd.Context(), cmd, daemonPath, addr, configPath, verbose, background)
		},
	}
	startCmd.Flags().String("daemon", "", "Path to daemon binary")
	startCmd.Flags().String("addr", "", "Listen address (overrides config)")
	startCmd.Flags().BoolP("d", "d", false, "Run in background")

	// Add stop command
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop()
		},
	}

	// Add status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show background service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")
			return runStatus(cmd.Context(), jsonOutput)
		},
	}
	statusCmd.Flags().BoolP("json", "j", false, "Output as JSON")

	commands.RootCmd.AddCommand(startCmd)
	commands.RootCmd.AddCommand(stopCmd)
	commands.RootCmd.AddCommand(statusCmd)

	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	versionTemplate := "cflow version {{.Version}}\n"
	if buildTime != "" {
		versionTemplate = "cflow version {{.Version}} (built " + buildTime + ")\n"
	}
	commands.RootCmd.SetVersionTemplate(versionTemplate)
	commands.RootCmd.Version = version

	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runStart(ctx context.Context, cmd *cobra.Command, daemonPath, addr, configPath string, verbose, background bool) error {
	if addr == "" {
		cfg, err := commands.LoadConfig(cmd)
		if err != nil {
			return err
		}
		addr = cfg.Addr
	}

	opts := &daemon.StartOptions{
		DaemonPath:   daemonPath,
		ConfigPath:   configPath,
		Addr:         addr,
		Verbose:      verbose,
		WaitForReady: true,
		ReadyTimeout: daemon.ReadyTimeout,
		Background:   background,
	}

	result, err := daemon.Start(ctx, opts)
	if err != nil {
		return err
	}

	if !result.Success {
		if result.Error != "" {
			fmt.Printf("Failed to start daemon: %s\n", result.Error)
		}
		if result.PID > 0 {
			fmt.Printf("Daemon already running with PID %d\n", result.PID)
		}
		return nil
	}

	fmt.Printf("Daemon started with PID %d on %s\n", result.PID, addr)
	return nil
}

func runStop() error {
	result, err := daemon.Stop()
	if err != nil {
		return err
	}

	if !result.Success {
		if result.Error != "" {
			fmt.Printf("Failed to stop daemon: %s\n", result.Error)
		}
		return nil
	}

	fmt.Printf("Daemon stopped (PID: %d)\n", result.PID)
	return nil
}

func runStatus(ctx context.Context, jsonOutput bool) error {
	result, err := daemon.GetStatus(ctx, "")
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Status: %s\n", result.Status)
	if result.Error != "" {
		fmt.Printf("Error: %s\n", result.Error)
		return nil
	}
	if result.PID > 0 {
		fmt.Printf("PID: %d\n", result.PID)
	}
	if result.Addr != "" {
		fmt.Printf("Address: %s\n", result.Addr)
	}
	if result.Version != "" {
		fmt.Printf("Version: %s\n", result.Version)
	}
	if !result.StartedAt.IsZero() {
		fmt.Printf("Started: %s\n", result.StartedAt.Format(time.RFC3339))
	}

	return nil
}
