package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mvalkon/chatwarden/internal/models"
)

// MemoryStorage is a map-backed Storage used for local development and tests.
type MemoryStorage struct {
	mu            sync.RWMutex
	antiDelete    *models.AntiDeleteSettings
	viewOnce      *models.ViewOnceSettings
	autoResponder *models.AutoResponderSettings
	conversations map[string]*models.Conversation
	bindings      map[string]*models.StickerBinding
	credentials   []byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[string]*models.Conversation),
		bindings:      make(map[string]*models.StickerBinding),
	}
}

func (s *MemoryStorage) AntiDeleteSettings(ctx context.Context) (*models.AntiDeleteSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.antiDelete == nil {
		return &models.AntiDeleteSettings{Mode: models.ForwardOff}, nil
	}
	copied := *s.antiDelete
	return &copied, nil
}

func (s *MemoryStorage) SaveAntiDeleteSettings(ctx context.Context, settings *models.AntiDeleteSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *settings
	s.antiDelete = &copied
	return nil
}

func (s *MemoryStorage) ViewOnceSettings(ctx context.Context) (*models.ViewOnceSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.viewOnce == nil {
		return &models.ViewOnceSettings{Mode: models.ForwardOff}, nil
	}
	copied := *s.viewOnce
	return &copied, nil
}

func (s *MemoryStorage) SaveViewOnceSettings(ctx context.Context, settings *models.ViewOnceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *settings
	s.viewOnce = &copied
	return nil
}

func (s *MemoryStorage) AutoResponderSettings(ctx context.Context) (*models.AutoResponderSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.autoResponder == nil {
		return &models.AutoResponderSettings{}, nil
	}
	copied := *s.autoResponder
	copied.IgnoreList = append([]string(nil), s.autoResponder.IgnoreList...)
	return &copied, nil
}

func (s *MemoryStorage) SaveAutoResponderSettings(ctx context.Context, settings *models.AutoResponderSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *settings
	copied.IgnoreList = append([]string(nil), settings.IgnoreList...)
	s.autoResponder = &copied
	return nil
}

func (s *MemoryStorage) Conversation(ctx context.Context, chatID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[chatID]
	if !exists {
		return &models.Conversation{ChatID: chatID}, nil
	}
	copied := *conv
	copied.Turns = append([]models.Turn(nil), conv.Turns...)
	return &copied, nil
}

func (s *MemoryStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *conv
	copied.Turns = append([]models.Turn(nil), conv.Turns...)
	s.conversations[conv.ChatID] = &copied
	return nil
}

func (s *MemoryStorage) ClearConversation(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[chatID] = &models.Conversation{ChatID: chatID, LastActivity: time.Now()}
	return nil
}

func (s *MemoryStorage) StickerBinding(ctx context.Context, fingerprint string) (*models.StickerBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, exists := s.bindings[fingerprint]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *binding
	return &copied, nil
}

func (s *MemoryStorage) SaveStickerBinding(ctx context.Context, binding *models.StickerBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *binding
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.bindings[binding.Fingerprint] = &copied
	return nil
}

func (s *MemoryStorage) DeleteStickerBinding(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bindings[fingerprint]; !exists {
		return false, nil
	}
	delete(s.bindings, fingerprint)
	return true, nil
}

func (s *MemoryStorage) ListStickerBindings(ctx context.Context) ([]*models.StickerBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bindings := make([]*models.StickerBinding, 0, len(s.bindings))
	for _, binding := range s.bindings {
		copied := *binding
		bindings = append(bindings, &copied)
	}
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].CreatedAt.After(bindings[j].CreatedAt)
	})
	return bindings, nil
}

func (s *MemoryStorage) Credentials(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.credentials == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.credentials...), nil
}

func (s *MemoryStorage) SaveCredentials(ctx context.Context, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
