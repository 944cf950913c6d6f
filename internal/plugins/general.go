package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/transport"
)

func pingCommand() *command.Descriptor {
	return &command.Descriptor{
		Aliases:     []string{"ping"},
		Category:    "general",
		Description: "Check bot latency",
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			start := time.Now()
			if _, err := conn.SendText(ctx, ev.ChatID, "Pinging...", nil); err != nil {
				return err
			}
			latency := time.Since(start)

			_, err := conn.SendText(ctx, ev.ChatID,
				fmt.Sprintf("Pong! Latency: %dms", latency.Milliseconds()), nil)
			return err
		},
	}
}

func menuCommand(registry *command.Registry, marker string) *command.Descriptor {
	return &command.Descriptor{
		Aliases:     []string{"menu", "help"},
		Category:    "general",
		Description: "List available commands",
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			var b strings.Builder
			b.WriteString("Available commands\n")

			category := ""
			for _, d := range registry.All() {
				if d.Category != category {
					category = d.Category
					fmt.Fprintf(&b, "\n[%s]\n", category)
				}
				fmt.Fprintf(&b, "%s%s", marker, strings.Join(d.Aliases, " / "+marker))
				if d.Description != "" {
					fmt.Fprintf(&b, " - %s", d.Description)
				}
				if d.SudoOnly {
					b.WriteString(" (sudo)")
				}
				b.WriteString("\n")
			}

			_, err := conn.SendText(ctx, ev.ChatID, b.String(), &transport.SendOptions{ReplyTo: ev.ID})
			return err
		},
	}
}
