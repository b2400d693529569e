package commands

import (
	"fmt"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/spf13/cobra"
)

// Version is reported by serve, status and the --version flag.
var Version = "dev"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "cflow",
	Short: "codeflow - Python control-flow diagrams",
	Long: `codeflow turns Python source into flowchart diagrams.

Commands:
  render      Render a Python file as a diagram
  serve       Run the HTTP service in the foreground
  init        Create a configuration file interactively
  doctor      Check the toolchain and configuration
  start       Start the background service
  stop        Stop the background service
  status      Show background service status

Use "cflow [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project, then global)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Verbose logging")
}

// LoadConfig honors --config when given and the layered lookup otherwise.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
