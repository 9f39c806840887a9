// Package commands defines all Cobra CLI commands for the cinerag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag/internal/audit"
	"github.com/54b3r/cinerag/internal/config"
	"github.com/54b3r/cinerag/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cinerag",
		Short: "cinerag: conversational movie and TV recommendations",
		Long: `cinerag answers questions about what to watch.

It decides whether a message asks for recommendations, retrieves matching
titles from a Qdrant index (optionally filtered by genre, streaming provider
and release year), reranks them by relevance, popularity and rating, and
streams a reply from the configured chat model.

The chat model is selected via MODEL_PROVIDER or a YAML config file
(~/.cinerag/config.yaml). See 'cinerag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.cinerag/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
