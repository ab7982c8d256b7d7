package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewResetCmd constructs the `docmind reset` command, which clears a
// business's cached responses and, with --drop, deletes its entire
// knowledge base collection.
func NewResetCmd() *cobra.Command {
	var businessID string
	var drop bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a business's response cache, or drop its whole knowledge base",
		Long: `Clear a business's in-memory response cache.

With --drop, the business's entire vector collection is deleted as well.
Dropping is irreversible; documents must be re-ingested afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := requireBusiness(cmd, businessID); err != nil {
				return err
			}

			reg, cleanup, err := newRegistry(ctx, log)
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			defer cleanup()

			eng, err := reg.GetOrCreate(ctx, businessID)
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}

			eng.ClearCache()
			if drop {
				if err := eng.DeleteCollection(ctx); err != nil {
					return fmt.Errorf("reset: dropping collection: %w", err)
				}
				fmt.Printf("dropped knowledge base for %s\n", businessID)
				return nil
			}
			fmt.Printf("cleared response cache for %s\n", businessID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&businessID, "business", "b", "", "Business id to reset (required)")
	cmd.Flags().BoolVar(&drop, "drop", false, "Also delete the business's vector collection")

	return cmd
}
