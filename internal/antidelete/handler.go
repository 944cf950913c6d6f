package antidelete

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/cache"
	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/models"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/transport"
)

// SettingsKey is the settings-cache key for anti-delete configuration.
const SettingsKey = "anti_delete"

// Handler recovers deleted messages from the ephemeral cache and forwards a
// notice to the destination the configured mode selects.
type Handler struct {
	messages *cache.MessageCache
	settings *cache.SettingsCache
	store    storage.Storage
	sudo     command.SudoList
	logger   *zap.Logger
}

func NewHandler(messages *cache.MessageCache, settings *cache.SettingsCache, store storage.Storage, sudo command.SudoList, logger *zap.Logger) *Handler {
	return &Handler{
		messages: messages,
		settings: settings,
		store:    store,
		sudo:     sudo,
		logger:   logger,
	}
}

// Capture records an inbound event for later recovery.
func (h *Handler) Capture(ev *event.Event) {
	h.messages.Capture(ev)
}

// Sweep evicts expired records. Run periodically by the scheduler.
func (h *Handler) Sweep(ctx context.Context) {
	h.messages.Sweep()
}

func (h *Handler) currentSettings(ctx context.Context) *models.AntiDeleteSettings {
	value := h.settings.Get(ctx, SettingsKey, func(ctx context.Context) (any, error) {
		return h.store.AntiDeleteSettings(ctx)
	})
	settings, ok := value.(*models.AntiDeleteSettings)
	if !ok {
		return &models.AntiDeleteSettings{Mode: models.ForwardOff}
	}
	return settings
}

// HandleDeletion reacts to one deletion notice. It produces at most one
// forwarded notice, and never one for a message the cache did not capture.
// The cached record is read, not removed.
func (h *Handler) HandleDeletion(ctx context.Context, conn transport.Conn, del event.Deletion) (bool, error) {
	settings := h.currentSettings(ctx)
	if !settings.Enabled || settings.Mode == models.ForwardOff || settings.Mode == "" {
		return false, nil
	}

	destination, ok := h.destination(settings, del)
	if !ok {
		return false, nil
	}

	cached, found := h.messages.Lookup(del.ChatID, del.MessageID)
	if !found {
		h.logger.Warn("Deleted message not in cache",
			zap.String("chat_id", del.ChatID),
			zap.String("message_id", del.MessageID))
		return false, nil
	}

	notice := h.formatNotice(cached)

	if cached.HasMedia {
		if err := h.forwardMedia(ctx, conn, destination, cached, notice); err != nil {
			h.logger.Error("Failed to recover deleted media, sending text notice",
				zap.Error(err),
				zap.String("chat_id", del.ChatID),
				zap.String("message_id", del.MessageID))
			if _, err := conn.SendText(ctx, destination, notice+"\n\nMedia unavailable", &transport.SendOptions{Mentions: []string{cached.SenderID}}); err != nil {
				return false, fmt.Errorf("sending fallback notice: %w", err)
			}
		}
	} else {
		if _, err := conn.SendText(ctx, destination, notice, &transport.SendOptions{Mentions: []string{cached.SenderID}}); err != nil {
			return false, fmt.Errorf("sending notice: %w", err)
		}
	}

	h.logger.Info("Deleted message forwarded",
		zap.String("destination", destination),
		zap.String("message_id", del.MessageID))
	return true, nil
}

// destination resolves the chat the notice goes to. The sudo-only mode gates
// on the deleter being privileged; the private mode deliberately does not,
// the two modes are configured independently.
func (h *Handler) destination(settings *models.AntiDeleteSettings, del event.Deletion) (string, bool) {
	switch settings.Mode {
	case models.ForwardPrivate:
		return h.sudo.First()
	case models.ForwardSameChat:
		return del.ChatID, true
	case models.ForwardSudoOnly:
		if !h.sudo.Contains(del.DeleterID) {
			return "", false
		}
		return h.sudo.First()
	case models.ForwardTarget:
		if settings.TargetChatID == "" {
			h.logger.Warn("No target chat configured for anti-delete target mode")
			return "", false
		}
		return settings.TargetChatID, true
	default:
		return "", false
	}
}

func (h *Handler) formatNotice(cached *cache.CachedMessage) string {
	chatKind := "Private"
	if cached.Group {
		chatKind = "Group"
	}

	var b strings.Builder
	b.WriteString("Deleted message detected\n\n")
	fmt.Fprintf(&b, "From: @%s\n", cached.SenderID)
	fmt.Fprintf(&b, "Chat: %s\n", chatKind)
	fmt.Fprintf(&b, "Time: %s\n", cached.Timestamp.Format("2006-01-02 15:04:05"))
	if cached.Text != "" {
		fmt.Fprintf(&b, "\nMessage:\n%s", cached.Text)
	}
	return b.String()
}

func (h *Handler) forwardMedia(ctx context.Context, conn transport.Conn, destination string, cached *cache.CachedMessage, notice string) error {
	data, err := conn.FetchMedia(ctx, cached.Media)
	if err != nil {
		return fmt.Errorf("re-fetching media: %w", err)
	}

	media := transport.OutboundMedia{
		Kind:     cached.Kind,
		Data:     data,
		Caption:  notice,
		Mentions: []string{cached.SenderID},
	}
	if cached.Media != nil {
		media.MimeType = cached.Media.MimeType
		media.FileName = cached.Media.FileName
		media.VoiceNote = cached.Media.VoiceNote
	}

	// Audio and stickers cannot carry a caption, send the notice first.
	if cached.Kind == event.KindAudio || cached.Kind == event.KindSticker {
		if _, err := conn.SendText(ctx, destination, notice, &transport.SendOptions{Mentions: []string{cached.SenderID}}); err != nil {
			return fmt.Errorf("sending media notice header: %w", err)
		}
		media.Caption = ""
	}

	if _, err := conn.SendMedia(ctx, destination, media); err != nil {
		return fmt.Errorf("re-sending media: %w", err)
	}
	return nil
}
