package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatGenerator adapts an eino ChatModel to the single-shot completion
// interface the engine consumes. The engine assembles its full prompt
// (system instructions, history, context, question) as one string, so the
// whole prompt is sent as a single user message.
type ChatGenerator struct {
	chatModel model.BaseChatModel
}

// NewGenerator wraps the given chat model.
func NewGenerator(chatModel model.BaseChatModel) *ChatGenerator {
	return &ChatGenerator{chatModel: chatModel}
}

// Generate returns the model's completion for the prompt.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.chatModel.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("provider: generation failed: %w", err)
	}
	return msg.Content, nil
}
