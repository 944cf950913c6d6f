package plugins

import (
	"context"
	"fmt"

	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/transport"
)

func viewOnceCommand(deps Deps) *command.Descriptor {
	return &command.Descriptor{
		Aliases:     []string{"vv", "viewonce"},
		Category:    "media",
		Description: "Re-send a quoted view-once media item",
		Run: func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
			if ev.Quoted == nil {
				return reply(ctx, conn, ev, "Reply to a view-once message with vv.")
			}
			if !ev.Quoted.ViewOnce || ev.Quoted.Media == nil {
				return reply(ctx, conn, ev, "The quoted message is not a view-once media item.")
			}

			switch ev.Quoted.Kind {
			case event.KindImage, event.KindVideo, event.KindAudio:
			default:
				return reply(ctx, conn, ev, "Unsupported view-once media type.")
			}

			data, err := conn.FetchMedia(ctx, ev.Quoted.Media)
			if err != nil {
				return fmt.Errorf("downloading view-once media: %w", err)
			}

			media := transport.OutboundMedia{
				Kind:      ev.Quoted.Kind,
				Data:      data,
				Caption:   "View-once media",
				MimeType:  ev.Quoted.Media.MimeType,
				VoiceNote: ev.Quoted.Media.VoiceNote,
			}
			if _, err := conn.SendMedia(ctx, ev.ChatID, media); err != nil {
				return fmt.Errorf("re-sending view-once media: %w", err)
			}
			return nil
		},
	}
}
