package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
	token      string
	baseURL    string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "hunt",
		Short:        "Treasure-hunt client: play mysteries from the terminal or a local websocket gateway",
		SilenceUsage: true,
	}

	flags := &rootFlags{configPath: &configPath, port: &port, token: &token, baseURL: &baseURL}
	cmd.PersistentFlags().StringVar(&port, "port", "", "port to listen on (default: PORT, config server.port, then 8080)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (overrides config and HUNT_TOKEN)")
	cmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (overrides config and HUNT_API_URL)")

	cmd.AddCommand(NewServeCmd(flags))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewLevelsCmd(flags))
	cmd.AddCommand(NewProgressCmd(flags))
	cmd.AddCommand(NewMysteriesCmd(flags))
	cmd.AddCommand(NewJoinCmd(flags))
	cmd.AddCommand(NewPresentsCmd(flags))
	cmd.AddCommand(NewPlayCmd(flags))
	cmd.AddCommand(NewAssetCmd(flags))
	return cmd
}

// rootFlags points at the persistent flag values shared by subcommands.
type rootFlags struct {
	configPath *string
	port       *string
	token      *string
	baseURL    *string
}
