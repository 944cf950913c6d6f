package responder

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/cache"
	"github.com/mvalkon/chatwarden/internal/convo"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/models"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/transport"
)

// SettingsKey is the settings-cache key for auto-responder configuration.
const SettingsKey = "auto_responder"

// Responder generates automatic replies to direct messages using the rolling
// conversation context. Group chats and the bot's own messages are never
// answered.
type Responder struct {
	settings           *cache.SettingsCache
	store              storage.Storage
	conversations      *convo.Manager
	generator          Generator
	defaultPersonality string
	logger             *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{} // event IDs being answered
}

func New(settings *cache.SettingsCache, store storage.Storage, conversations *convo.Manager, generator Generator, defaultPersonality string, logger *zap.Logger) *Responder {
	return &Responder{
		settings:           settings,
		store:              store,
		conversations:      conversations,
		generator:          generator,
		defaultPersonality: defaultPersonality,
		logger:             logger,
		inflight:           make(map[string]struct{}),
	}
}

func (r *Responder) currentSettings(ctx context.Context) *models.AutoResponderSettings {
	value := r.settings.Get(ctx, SettingsKey, func(ctx context.Context) (any, error) {
		return r.store.AutoResponderSettings(ctx)
	})
	settings, ok := value.(*models.AutoResponderSettings)
	if !ok {
		return &models.AutoResponderSettings{}
	}
	return settings
}

func (r *Responder) shouldRespond(ctx context.Context, ev *event.Event) bool {
	if ev.FromMe || ev.Group || ev.Kind != event.KindText || ev.Text == "" {
		return false
	}
	if r.generator == nil {
		return false
	}

	settings := r.currentSettings(ctx)
	if !settings.Enabled {
		return false
	}
	for _, ignored := range settings.IgnoreList {
		if ignored == ev.SenderID {
			return false
		}
	}
	return true
}

// HandleMessage answers ev if the auto-responder applies. Returns whether a
// reply was sent; the event is consumed on success.
func (r *Responder) HandleMessage(ctx context.Context, conn transport.Conn, ev *event.Event) (bool, error) {
	if !r.shouldRespond(ctx, ev) {
		return false, nil
	}

	r.mu.Lock()
	if _, busy := r.inflight[ev.ID]; busy {
		r.mu.Unlock()
		return false, nil
	}
	r.inflight[ev.ID] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, ev.ID)
		r.mu.Unlock()
	}()

	if err := conn.SendPresence(ctx, ev.ChatID, transport.PresenceTyping); err != nil {
		r.logger.Debug("Failed to send typing presence", zap.Error(err))
	}
	defer func() {
		if err := conn.SendPresence(ctx, ev.ChatID, transport.PresencePaused); err != nil {
			r.logger.Debug("Failed to clear typing presence", zap.Error(err))
		}
	}()

	settings := r.currentSettings(ctx)
	personality := settings.Personality
	if personality == "" {
		personality = r.defaultPersonality
	}

	history, err := r.conversations.GetContext(ctx, ev.ChatID)
	if err != nil {
		r.logger.Error("Failed to load conversation context, starting fresh",
			zap.Error(err),
			zap.String("chat_id", ev.ChatID))
		history = nil
	}

	if err := r.conversations.AddTurn(ctx, ev.ChatID, models.RoleUser, ev.Text); err != nil {
		r.logger.Error("Failed to stage user turn",
			zap.Error(err),
			zap.String("chat_id", ev.ChatID))
	}

	reply, err := r.generator.Generate(ctx, personality, history, ev.Text)
	if err != nil {
		return false, fmt.Errorf("generating auto response: %w", err)
	}

	if err := r.conversations.AddTurn(ctx, ev.ChatID, models.RoleAssistant, reply); err != nil {
		r.logger.Error("Failed to stage assistant turn",
			zap.Error(err),
			zap.String("chat_id", ev.ChatID))
	}

	if _, err := conn.SendText(ctx, ev.ChatID, reply, &transport.SendOptions{ReplyTo: ev.ID}); err != nil {
		return false, fmt.Errorf("sending auto response: %w", err)
	}
	return true, nil
}
