package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/mvalkon/chatwarden/internal/antidelete"
	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/models"
	"github.com/mvalkon/chatwarden/internal/responder"
	"github.com/mvalkon/chatwarden/internal/transport"
	"github.com/mvalkon/chatwarden/internal/viewonce"
)

// parseForwardMode maps a command argument onto a forward mode. The target
// mode takes the destination chat as a second token.
func parseForwardMode(args string) (models.ForwardMode, string, error) {
	fields := strings.Fields(strings.ToLower(args))
	if len(fields) == 0 {
		return "", "", fmt.Errorf("missing mode")
	}

	switch fields[0] {
	case "off":
		return models.ForwardOff, "", nil
	case "p", "private":
		return models.ForwardPrivate, "", nil
	case "g", "chat":
		return models.ForwardSameChat, "", nil
	case "sudo":
		return models.ForwardSudoOnly, "", nil
	case "target":
		if len(fields) < 2 {
			return "", "", fmt.Errorf("target mode needs a chat id")
		}
		return models.ForwardTarget, fields[1], nil
	default:
		return "", "", fmt.Errorf("unknown mode %q", fields[0])
	}
}

func antiDeleteCommand(deps Deps) *command.Descriptor {
	const usage = "Usage: antidelete off | p | g | sudo | target <chat id>"

	return &command.Descriptor{
		Aliases:     []string{"antidelete"},
		Category:    "config",
		Description: "Configure deleted-message recovery",
		SudoOnly:    true,
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			mode, target, err := parseForwardMode(args)
			if err != nil {
				return reply(ctx, conn, ev, usage)
			}

			settings := &models.AntiDeleteSettings{
				Enabled:      mode != models.ForwardOff,
				Mode:         mode,
				TargetChatID: target,
			}
			if err := deps.Store.SaveAntiDeleteSettings(ctx, settings); err != nil {
				return fmt.Errorf("saving anti-delete settings: %w", err)
			}
			deps.Settings.Invalidate(antidelete.SettingsKey)

			if mode == models.ForwardOff {
				return reply(ctx, conn, ev, "Anti-delete disabled.")
			}
			return reply(ctx, conn, ev, fmt.Sprintf("Anti-delete enabled, mode %s.", mode))
		},
	}
}

func viewOnceModeCommand(deps Deps) *command.Descriptor {
	const usage = "Usage: autovv off | p | g | target <chat id>"

	return &command.Descriptor{
		Aliases:     []string{"autovv"},
		Category:    "config",
		Description: "Configure automatic view-once forwarding",
		SudoOnly:    true,
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			mode, target, err := parseForwardMode(args)
			if err != nil || mode == models.ForwardSudoOnly {
				return reply(ctx, conn, ev, usage)
			}

			settings := &models.ViewOnceSettings{
				Enabled:      mode != models.ForwardOff,
				Mode:         mode,
				TargetChatID: target,
			}
			if err := deps.Store.SaveViewOnceSettings(ctx, settings); err != nil {
				return fmt.Errorf("saving view-once settings: %w", err)
			}
			deps.Settings.Invalidate(viewonce.SettingsKey)

			if mode == models.ForwardOff {
				return reply(ctx, conn, ev, "View-once forwarding disabled.")
			}
			return reply(ctx, conn, ev, fmt.Sprintf("View-once forwarding enabled, mode %s.", mode))
		},
	}
}

func autoResponderCommand(deps Deps) *command.Descriptor {
	const usage = "Usage: autoresponder on | off | ignore <add|remove> <sender id> | personality <text>"

	return &command.Descriptor{
		Aliases:     []string{"autoresponder", "ar"},
		Category:    "config",
		Description: "Configure the AI auto-responder",
		SudoOnly:    true,
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			settings, err := deps.Store.AutoResponderSettings(ctx)
			if err != nil {
				return fmt.Errorf("loading auto-responder settings: %w", err)
			}

			fields := strings.Fields(args)
			if len(fields) == 0 {
				return reply(ctx, conn, ev, usage)
			}

			var confirmation string
			switch strings.ToLower(fields[0]) {
			case "on":
				settings.Enabled = true
				confirmation = "Auto-responder enabled."
			case "off":
				settings.Enabled = false
				confirmation = "Auto-responder disabled."
			case "ignore":
				if len(fields) < 3 {
					return reply(ctx, conn, ev, usage)
				}
				sender := fields[2]
				switch strings.ToLower(fields[1]) {
				case "add":
					settings.IgnoreList = append(settings.IgnoreList, sender)
					confirmation = fmt.Sprintf("Added %s to the ignore list.", sender)
				case "remove":
					kept := settings.IgnoreList[:0]
					for _, id := range settings.IgnoreList {
						if id != sender {
							kept = append(kept, id)
						}
					}
					settings.IgnoreList = kept
					confirmation = fmt.Sprintf("Removed %s from the ignore list.", sender)
				default:
					return reply(ctx, conn, ev, usage)
				}
			case "personality":
				text := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
				if text == "" {
					return reply(ctx, conn, ev, usage)
				}
				settings.Personality = text
				confirmation = "Personality updated."
			default:
				return reply(ctx, conn, ev, usage)
			}

			if err := deps.Store.SaveAutoResponderSettings(ctx, settings); err != nil {
				return fmt.Errorf("saving auto-responder settings: %w", err)
			}
			deps.Settings.Invalidate(responder.SettingsKey)

			return reply(ctx, conn, ev, confirmation)
		},
	}
}
