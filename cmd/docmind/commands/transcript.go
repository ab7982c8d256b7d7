package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewTranscriptCmd constructs the `docmind transcript` command, which
// prints the persisted exchanges for one session.
func NewTranscriptCmd() *cobra.Command {
	var businessID string
	var sessionID string
	var limit int

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Show the persisted transcript of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := requireBusiness(cmd, businessID); err != nil {
				return err
			}
			if sessionID == "" {
				return fmt.Errorf("transcript: --session is required")
			}

			tl := openTranscript(log)
			if tl == nil {
				return fmt.Errorf("transcript: transcript persistence is disabled")
			}
			defer tl.Close()

			entries, err := tl.Recent(ctx, businessID, sessionID, limit)
			if err != nil {
				return fmt.Errorf("transcript: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("no transcript entries for this session")
				return nil
			}

			for _, e := range entries {
				fmt.Printf("[%s] Q: %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Question)
				fmt.Printf("           A: %s  (%d ms, %d sources)\n\n",
					e.Answer, e.ResponseTimeMs, e.SourceCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&businessID, "business", "b", "", "Business id the session belongs to (required)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to show (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of exchanges to show")

	return cmd
}
