package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/models"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/transport"
)

// quotedStickerFingerprint extracts the fingerprint of the sticker an event
// replies to, if any.
func quotedStickerFingerprint(ev *event.Event) (string, bool) {
	if ev.Quoted == nil || ev.Quoted.Kind != event.KindSticker {
		return "", false
	}
	if ev.Quoted.Media == nil || ev.Quoted.Media.Fingerprint == "" {
		return "", false
	}
	return ev.Quoted.Media.Fingerprint, true
}

func setCmdCommand(deps Deps) *command.Descriptor {
	return &command.Descriptor{
		Aliases:     []string{"setcmd"},
		Category:    "utility",
		Description: "Bind a command to a sticker",
		SudoOnly:    true,
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			fingerprint, ok := quotedStickerFingerprint(ev)
			if !ok {
				return reply(ctx, conn, ev,
					"Reply to a sticker with setcmd <command>, e.g. setcmd vv")
			}

			name := strings.TrimSpace(args)
			name = strings.TrimPrefix(name, deps.Marker)
			if name == "" {
				return reply(ctx, conn, ev, "Specify a command: setcmd <command>")
			}

			binding := &models.StickerBinding{
				Fingerprint: fingerprint,
				Command:     name,
				CreatedBy:   ev.SenderID,
			}
			if err := deps.Store.SaveStickerBinding(ctx, binding); err != nil {
				return fmt.Errorf("saving sticker binding: %w", err)
			}

			return reply(ctx, conn, ev,
				fmt.Sprintf("Command bound to sticker: %s\nSend the sticker to run it silently.", name))
		},
	}
}

func getCmdCommand(deps Deps) *command.Descriptor {
	return &command.Descriptor{
		Aliases:     []string{"getcmd"},
		Category:    "utility",
		Description: "Show the command bound to a sticker, or list all bindings",
		SudoOnly:    true,
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			if fingerprint, ok := quotedStickerFingerprint(ev); ok {
				binding, err := deps.Store.StickerBinding(ctx, fingerprint)
				if errors.Is(err, storage.ErrNotFound) {
					return reply(ctx, conn, ev, "No command bound to this sticker. Use setcmd <command> to bind one.")
				}
				if err != nil {
					return fmt.Errorf("looking up sticker binding: %w", err)
				}
				return reply(ctx, conn, ev, fmt.Sprintf("Bound command: %s", binding.Command))
			}

			bindings, err := deps.Store.ListStickerBindings(ctx)
			if err != nil {
				return fmt.Errorf("listing sticker bindings: %w", err)
			}
			if len(bindings) == 0 {
				return reply(ctx, conn, ev, "No sticker bindings configured.")
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Sticker bindings (%d)\n\n", len(bindings))
			for i, binding := range bindings {
				fingerprint := binding.Fingerprint
				if len(fingerprint) > 16 {
					fingerprint = fingerprint[:16] + "..."
				}
				fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, binding.Command, fingerprint)
			}
			return reply(ctx, conn, ev, b.String())
		},
	}
}

func delCmdCommand(deps Deps) *command.Descriptor {
	return &command.Descriptor{
		Aliases:     []string{"delcmd"},
		Category:    "utility",
		Description: "Remove the command bound to a sticker",
		SudoOnly:    true,
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			fingerprint, ok := quotedStickerFingerprint(ev)
			if !ok {
				return reply(ctx, conn, ev, "Reply to a sticker with delcmd to remove its binding.")
			}

			deleted, err := deps.Store.DeleteStickerBinding(ctx, fingerprint)
			if err != nil {
				return fmt.Errorf("deleting sticker binding: %w", err)
			}
			if !deleted {
				return reply(ctx, conn, ev, "No command bound to this sticker.")
			}
			return reply(ctx, conn, ev, "Binding removed. The sticker no longer runs a command.")
		},
	}
}

func reply(ctx context.Context, conn transport.Conn, ev *event.Event, text string) error {
	_, err := conn.SendText(ctx, ev.ChatID, text, &transport.SendOptions{ReplyTo: ev.ID})
	return err
}
