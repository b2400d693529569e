package commands

import (
	"fmt"
	"os"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/healthcheck"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and toolchain",
	Long: `Checks the configuration and verifies that the parser, the SVG
renderer and the cache file are working. With --service it also probes
the running HTTP service.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return err
		}

		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			configPath = effectiveConfigPath()
		}
		probeService, _ := cmd.Flags().GetBool("service")

		result, err := healthcheck.Check(cmd.Context(), cfg, "", configPath, probeService)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if !result.OK() {
			return fmt.Errorf("health check failed: one or more components are not working")
		}
		return nil
	},
}

// effectiveConfigPath returns the highest priority config file that
// exists, or "" when only defaults apply.
func effectiveConfigPath() string {
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if path != "" && fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(result *healthcheck.HealthCheckResult) {
	if result.EffectivePath != "" {
		fmt.Printf("Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	} else {
		fmt.Print("Using config: built-in defaults\n\n")
	}
	if result.SavedPath != "" && result.SavedPath != result.EffectivePath {
		fmt.Printf("Note: %s is overridden by %s\n\n", result.SavedPath, result.EffectivePath)
	}

	for _, c := range []healthcheck.ComponentStatus{result.Parser, result.Renderer, result.Cache, result.Service} {
		printComponentStatus(c)
	}
}

func printComponentStatus(c healthcheck.ComponentStatus) {
	fmt.Printf("%s:\n", c.Name)
	fmt.Printf("  Status: %s %s\n", formatStatusIcon(c.Status), c.Status)
	if c.Detail != "" {
		fmt.Printf("  Detail: %s\n", c.Detail)
	}
	if c.Error != "" && c.Status == healthcheck.StatusError {
		fmt.Printf("  Error: %s\n", c.Error)
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusSkipped:
		return "◐"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	doctorCmd.Flags().Bool("service", false, "Also probe the running HTTP service")
	RootCmd.AddCommand(doctorCmd)
}
