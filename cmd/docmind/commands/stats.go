package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewStatsCmd constructs the `docmind stats` command, which reports the
// state of a business's knowledge base.
func NewStatsCmd() *cobra.Command {
	var businessID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics for a business",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := requireBusiness(cmd, businessID); err != nil {
				return err
			}

			reg, cleanup, err := newRegistry(ctx, log)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer cleanup()

			eng, err := reg.GetOrCreate(ctx, businessID)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			stats := eng.GetStats(ctx)
			fmt.Printf("business:         %s\n", stats.BusinessID)
			fmt.Printf("indexed units:    %d\n", stats.UnitCount)
			fmt.Printf("cached responses: %d\n", stats.CachedResponses)
			fmt.Printf("active sessions:  %d\n", stats.ActiveSessions)
			fmt.Printf("hybrid search:    %t\n", stats.HybridSearchEnabled)
			fmt.Printf("reranking:        %t\n", stats.RerankingEnabled)
			return nil
		},
	}

	cmd.Flags().StringVarP(&businessID, "business", "b", "", "Business id to report on (required)")

	return cmd
}
