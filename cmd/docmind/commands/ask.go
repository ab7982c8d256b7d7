package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docmind-ai/docmind-go/internal/engine"
	"github.com/docmind-ai/docmind-go/internal/translog"
)

// NewAskCmd constructs the `docmind ask` command, which answers a single
// customer question from the business's knowledge base.
func NewAskCmd() *cobra.Command {
	var businessID string
	var sessionID string
	var systemPrompt string
	var noContext bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against a business's knowledge base",
		Long: `Answer a natural language question from the documents ingested for a business.

A session id keys conversation memory and the response cache. When --session
is omitted a fresh session id is minted and printed, so a follow-up question
can continue the same conversation.

Examples:
  docmind ask --business acme "What is your refund policy?"
  docmind ask --business acme --session 3fa85f64-5717-4562-b3fc-2c963f66afa6 "And for international orders?"
  docmind ask --business acme --no-context "Do you ship to Canada?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := requireBusiness(cmd, businessID); err != nil {
				return err
			}
			question := args[0]

			if sessionID == "" {
				sessionID = uuid.NewString()
				fmt.Printf("session: %s\n", sessionID)
			}

			reg, cleanup, err := newRegistry(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			eng, err := reg.GetOrCreate(ctx, businessID)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answer := eng.Ask(ctx, question, engine.AskOptions{
				SessionID:    sessionID,
				UseContext:   !noContext,
				SystemPrompt: systemPrompt,
			})

			fmt.Println(answer.Text)
			log.Info("answer delivered",
				slog.Int64("response_time_ms", answer.ResponseTimeMs),
				slog.Int("sources", answer.SourceCount),
			)

			if tl := openTranscript(log); tl != nil {
				defer tl.Close()
				entry := translog.Entry{
					BusinessID:     businessID,
					SessionID:      sessionID,
					Question:       question,
					Answer:         answer.Text,
					ResponseTimeMs: answer.ResponseTimeMs,
					SourceCount:    answer.SourceCount,
				}
				writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				if err := tl.Append(writeCtx, entry); err != nil {
					log.Warn("transcript write failed", slog.String("error", err.Error()))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&businessID, "business", "b", "", "Business id whose knowledge base to query (required)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id for conversation continuity (minted when omitted)")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "Override the default system prompt")
	cmd.Flags().BoolVar(&noContext, "no-context", false, "Exclude conversation history from the prompt")

	return cmd
}
