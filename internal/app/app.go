package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"github.com/sdis/opsdash/internal/di"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "opsdash",
	Short: "SDIS operations dashboard",
	Long: "Polls the operations inbox, classifies power-backup and radio-network " +
		"notices, and pushes notifications to subscribed browsers.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "opsdash.yaml",
		"path to the YAML configuration file")

	credentialCmd.AddCommand(credentialSetCmd, credentialDeleteCmd)
	rootCmd.AddCommand(serveCmd, pollCmd, credentialCmd)
}

// container builds the dependency graph for the selected configuration.
func container() (*dig.Container, error) {
	c, err := di.BuildContainer(configPath)
	if err != nil {
		return nil, fmt.Errorf("building container: %w", err)
	}
	return c, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
