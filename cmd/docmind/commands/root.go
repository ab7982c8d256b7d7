// Package commands defines all Cobra CLI commands for the docmind binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docmind-ai/docmind-go/internal/config"
	"github.com/docmind-ai/docmind-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docmind",
		Short: "DocMind — a multi-tenant AI support assistant for your documents",
		Long: `DocMind answers customer questions from each business's own documents.

Documents are ingested per business into an isolated knowledge base combining
dense vector search with BM25 keyword search. Questions are answered by an
LLM constrained to the retrieved context, with per-session conversation
memory and response caching.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.docmind/config.yaml).
See 'docmind --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			slog.SetDefault(log)

			// Load YAML config (env vars always override YAML values).
			if _, err := config.Load(configPath, log); err != nil {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docmind/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIngestCmd(),
		NewStatsCmd(),
		NewResetCmd(),
		NewTranscriptCmd(),
		NewVersionCmd(),
	)

	return root
}
