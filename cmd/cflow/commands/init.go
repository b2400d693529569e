package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/healthcheck"
	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize codeflow configuration interactively",
	Long: `Guides you through setting up codeflow step by step.
Creates a config file with diagram, cache and service settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd.Context())
	},
}

func runInit(ctx context.Context) error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Diagram ===
	ioCalls := strings.Join(cfg.IOCalls, ", ")
	maxDepth := strconv.Itoa(cfg.MaxDepth)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Flowchart direction").
				Description("Orientation written in the diagram header").
				Options(
					huh.NewOption("Top down (TD)", "TD"),
					huh.NewOption("Left to right (LR)", "LR"),
					huh.NewOption("Bottom up (BT)", "BT"),
					huh.NewOption("Right to left (RL)", "RL"),
				).
				Value(&cfg.Direction),
			huh.NewConfirm().
				Title("Merge identical statements?").
				Description("Statements with the same text and shape share one node").
				Affirmative("Merge").
				Negative("Keep separate").
				Value(&cfg.Dedup),
			huh.NewInput().
				Title("Input/output calls").
				Description("Comma-separated function names drawn as I/O").
				Placeholder("print, input").
				Value(&ioCalls),
			huh.NewInput().
				Title("Maximum nesting depth").
				Placeholder("100").
				Value(&maxDepth).
				Validate(validatePositive),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Service ===
	cacheSize := strconv.Itoa(cfg.CacheSize)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Placeholder(cfg.Addr).
				Value(&cfg.Addr),
			huh.NewInput().
				Title("Result cache size (0 disables caching)").
				Placeholder("256").
				Value(&cacheSize).
				Validate(validateNonNegative),
			huh.NewInput().
				Title("Cache file (optional, press Enter to keep it in memory)").
				Placeholder("optional").
				Value(&cfg.CachePath),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.cflow/config.yaml)", "global"),
					huh.NewOption("Project (./.cflow/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
		if configPath == "" {
			return fmt.Errorf("getting home directory failed")
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	applyInitAnswers(cfg, ioCalls, maxDepth, cacheSize)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("\nConfiguration saved to %s\n\n", configPath)

	effectivePath := effectiveConfigPath()
	result, err := healthcheck.Check(ctx, cfg, configPath, effectivePath, false)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	displayDoctorResult(result)
	return nil
}

// applyInitAnswers folds the free-text answers into cfg. Inputs were
// validated by the form.
func applyInitAnswers(cfg *config.Config, ioCalls, maxDepth, cacheSize string) {
	var calls []string
	for _, name := range strings.Split(ioCalls, ",") {
		if name = strings.TrimSpace(name); name != "" {
			calls = append(calls, name)
		}
	}
	cfg.IOCalls = calls
	if n, err := strconv.Atoi(strings.TrimSpace(maxDepth)); err == nil {
		cfg.MaxDepth = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(cacheSize)); err == nil {
		cfg.CacheSize = n
	}
	cfg.CachePath = strings.TrimSpace(cfg.CachePath)
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

func validateNonNegative(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("enter zero or a positive number")
	}
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
