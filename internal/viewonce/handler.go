package viewonce

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/cache"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/models"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/transport"
)

// SettingsKey is the settings-cache key for view-once configuration.
const SettingsKey = "view_once"

// Handler forwards one-time-view media to a configured destination before the
// recipient's single view burns it. Its contract is observe-and-forward: it
// never consumes the event, the dispatch chain continues either way.
type Handler struct {
	settings *cache.SettingsCache
	store    storage.Storage
	logger   *zap.Logger
}

func NewHandler(settings *cache.SettingsCache, store storage.Storage, logger *zap.Logger) *Handler {
	return &Handler{settings: settings, store: store, logger: logger}
}

func (h *Handler) currentSettings(ctx context.Context) *models.ViewOnceSettings {
	value := h.settings.Get(ctx, SettingsKey, func(ctx context.Context) (any, error) {
		return h.store.ViewOnceSettings(ctx)
	})
	settings, ok := value.(*models.ViewOnceSettings)
	if !ok {
		return &models.ViewOnceSettings{Mode: models.ForwardOff}
	}
	return settings
}

// HandleMessage forwards ev's media if it is a view-once item and forwarding
// is enabled. Returns whether a forward happened.
func (h *Handler) HandleMessage(ctx context.Context, conn transport.Conn, ev *event.Event) (bool, error) {
	if ev.FromMe || !ev.ViewOnce || !ev.HasMedia() {
		return false, nil
	}
	if ev.Kind != event.KindImage && ev.Kind != event.KindVideo {
		return false, nil
	}

	settings := h.currentSettings(ctx)
	if !settings.Enabled || settings.Mode == models.ForwardOff || settings.Mode == "" {
		return false, nil
	}

	var destination string
	switch settings.Mode {
	case models.ForwardPrivate:
		destination = conn.SelfID()
	case models.ForwardSameChat:
		destination = ev.ChatID
	case models.ForwardTarget:
		if settings.TargetChatID == "" {
			h.logger.Warn("No target chat configured for view-once target mode")
			return false, nil
		}
		destination = settings.TargetChatID
	default:
		return false, nil
	}

	data, err := conn.FetchMedia(ctx, ev.Media)
	if err != nil {
		return false, fmt.Errorf("downloading view-once media: %w", err)
	}

	caption := ev.Text
	if caption == "" {
		caption = fmt.Sprintf("View-once message from @%s", ev.SenderID)
	}

	media := transport.OutboundMedia{
		Kind:     ev.Kind,
		Data:     data,
		Caption:  caption,
		MimeType: ev.Media.MimeType,
		Mentions: []string{ev.SenderID},
	}
	if _, err := conn.SendMedia(ctx, destination, media); err != nil {
		return false, fmt.Errorf("forwarding view-once media: %w", err)
	}

	h.logger.Info("View-once message forwarded",
		zap.String("destination", destination),
		zap.String("chat_id", ev.ChatID))
	return true, nil
}
