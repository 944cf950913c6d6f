package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/antidelete"
	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/game"
	"github.com/mvalkon/chatwarden/internal/responder"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/transport"
	"github.com/mvalkon/chatwarden/internal/viewonce"
)

// Pipeline routes every inbound event through the fixed interceptor chain and
// finally the command executor. Interceptor order never changes; the first
// stage that consumes an event stops the chain. A failure inside one stage is
// logged and treated as declined, later events in the batch still run.
type Pipeline struct {
	marker        string // command marker prefix, e.g. "."
	broadcastChat string // broadcast-status channel, dropped outright
	sudo          command.SudoList
	registry      *command.Registry
	store         storage.Storage
	antiDelete    *antidelete.Handler
	viewOnce      *viewonce.Handler
	games         *game.State
	responder     *responder.Responder
	logger        *zap.Logger
}

type Config struct {
	Marker        string
	BroadcastChat string
	Sudo          command.SudoList
}

func NewPipeline(
	cfg Config,
	registry *command.Registry,
	store storage.Storage,
	antiDelete *antidelete.Handler,
	viewOnce *viewonce.Handler,
	games *game.State,
	autoResponder *responder.Responder,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		marker:        cfg.Marker,
		broadcastChat: cfg.BroadcastChat,
		sudo:          cfg.Sudo,
		registry:      registry,
		store:         store,
		antiDelete:    antiDelete,
		viewOnce:      viewOnce,
		games:         games,
		responder:     autoResponder,
		logger:        logger,
	}
}

// HandleBatch processes one inbound batch strictly in arrival order.
func (p *Pipeline) HandleBatch(ctx context.Context, conn transport.Conn, events []*event.Event) {
	for _, ev := range events {
		p.handleEvent(ctx, conn, ev)
	}
}

func (p *Pipeline) handleEvent(ctx context.Context, conn transport.Conn, ev *event.Event) {
	if p.broadcastChat != "" && ev.ChatID == p.broadcastChat {
		return
	}

	// Cache population is independent of dispatch outcome and runs before
	// any interceptor, so every non-self message is captured exactly once.
	p.antiDelete.Capture(ev)

	// View-once forwarding observes without consuming.
	p.runStage(ctx, ev, "view_once", func(ctx context.Context) (bool, error) {
		_, err := p.viewOnce.HandleMessage(ctx, conn, ev)
		return false, err
	})

	if handled := p.runStage(ctx, ev, "reply_game", func(ctx context.Context) (bool, error) {
		return p.games.HandleReply(ctx, conn, ev)
	}); handled {
		return
	}

	if handled := p.runStage(ctx, ev, "sticker_binding", func(ctx context.Context) (bool, error) {
		return p.handleStickerBinding(ctx, conn, ev)
	}); handled {
		return
	}

	isCommand := p.marker != "" && strings.HasPrefix(ev.Text, p.marker)

	if !isCommand && !ev.FromMe {
		if handled := p.runStage(ctx, ev, "auto_responder", func(ctx context.Context) (bool, error) {
			return p.responder.HandleMessage(ctx, conn, ev)
		}); handled {
			return
		}
	}

	if isCommand {
		p.runStage(ctx, ev, "executor", func(ctx context.Context) (bool, error) {
			return p.executeCommand(ctx, conn, ev, strings.TrimPrefix(ev.Text, p.marker))
		})
	}
}

// HandleDeletion routes a deletion notice to the anti-delete handler with the
// same failure isolation as the event chain.
func (p *Pipeline) HandleDeletion(ctx context.Context, conn transport.Conn, del event.Deletion) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic in deletion handler",
				zap.Any("panic", r),
				zap.String("chat_id", del.ChatID))
		}
	}()

	if _, err := p.antiDelete.HandleDeletion(ctx, conn, del); err != nil {
		p.logger.Error("Failed to handle deletion notice",
			zap.Error(err),
			zap.String("chat_id", del.ChatID),
			zap.String("message_id", del.MessageID))
	}
}

// runStage executes one interceptor with panic and error isolation. A stage
// that fails is treated as declined.
func (p *Pipeline) runStage(ctx context.Context, ev *event.Event, name string, stage func(context.Context) (bool, error)) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic in dispatch stage",
				zap.Any("panic", r),
				zap.String("stage", name),
				zap.String("chat_id", ev.ChatID))
			handled = false
		}
	}()

	handled, err := stage(ctx)
	if err != nil {
		p.logger.Error("Dispatch stage failed",
			zap.Error(err),
			zap.String("stage", name),
			zap.String("chat_id", ev.ChatID))
	}
	return handled
}

// handleStickerBinding rewrites a fingerprinted sticker into its bound
// command invocation and forwards it straight to the executor.
func (p *Pipeline) handleStickerBinding(ctx context.Context, conn transport.Conn, ev *event.Event) (bool, error) {
	if ev.Kind != event.KindSticker || ev.Media == nil || ev.Media.Fingerprint == "" {
		return false, nil
	}

	binding, err := p.store.StickerBinding(ctx, ev.Media.Fingerprint)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		// Persistence fault: fall back to "no binding found".
		return false, fmt.Errorf("looking up sticker binding: %w", err)
	}

	p.logger.Info("Sticker binding matched",
		zap.String("command", binding.Command),
		zap.String("chat_id", ev.ChatID))

	ev.Text = p.marker + binding.Command
	return p.executeCommand(ctx, conn, ev, binding.Command)
}

// executeCommand looks up the alias in the first token and invokes its
// handler with the remaining text. invocation is the event text with the
// command marker already stripped.
func (p *Pipeline) executeCommand(ctx context.Context, conn transport.Conn, ev *event.Event, invocation string) (bool, error) {
	fields := strings.Fields(invocation)
	if len(fields) == 0 {
		return false, nil
	}
	alias := fields[0]
	args := strings.TrimSpace(strings.TrimPrefix(invocation, alias))

	// A self-authored event is executed only when the session's own sender
	// is also sudo-listed (self-issued test commands).
	if ev.FromMe && !p.sudo.Contains(ev.SenderID) {
		return false, nil
	}

	descriptor, found := p.registry.Lookup(alias)
	if !found {
		p.reply(ctx, conn, ev, fmt.Sprintf("Command not found: %s", alias))
		return true, nil
	}

	if msg, ok := p.checkVisibility(descriptor, ev); !ok {
		if msg != "" {
			p.reply(ctx, conn, ev, msg)
		}
		return true, nil
	}

	if err := descriptor.Run(ctx, conn, ev, args); err != nil {
		p.reply(ctx, conn, ev, "Command failed, please try again.")
		return true, fmt.Errorf("command %s: %w", alias, err)
	}
	return true, nil
}

func (p *Pipeline) checkVisibility(d *command.Descriptor, ev *event.Event) (string, bool) {
	if d.SudoOnly && !p.sudo.Contains(ev.SenderID) {
		// Restricted commands stay invisible to non-privileged senders.
		return "", false
	}
	if d.GroupOnly && !ev.Group {
		return "This command only works in group chats.", false
	}
	if d.DirectOnly && ev.Group {
		return "This command only works in direct messages.", false
	}
	return "", true
}

func (p *Pipeline) reply(ctx context.Context, conn transport.Conn, ev *event.Event, text string) {
	if _, err := conn.SendText(ctx, ev.ChatID, text, &transport.SendOptions{ReplyTo: ev.ID}); err != nil {
		p.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.String("chat_id", ev.ChatID))
	}
}
