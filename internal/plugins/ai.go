package plugins

import (
	"context"
	"fmt"

	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/transport"
)

const gptPersonality = "You are a helpful assistant integrated into a chat bot. Keep responses concise and friendly."

func gptCommand(deps Deps) *command.Descriptor {
	return &command.Descriptor{
		Aliases:     []string{"gpt", "ai"},
		Category:    "ai",
		Description: "Ask the AI a one-shot question",
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			if deps.Generator == nil {
				return reply(ctx, conn, ev, "AI is not configured.")
			}
			if args == "" {
				return reply(ctx, conn, ev, "Ask a question, e.g. gpt What is Go?")
			}

			answer, err := deps.Generator.Generate(ctx, gptPersonality, nil, args)
			if err != nil {
				return fmt.Errorf("generating answer: %w", err)
			}
			return reply(ctx, conn, ev, answer)
		},
	}
}
