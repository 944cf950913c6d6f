package storage

import (
	"context"
	"errors"

	"github.com/mvalkon/chatwarden/internal/models"
)

// ErrNotFound is returned when a record does not exist and no default makes
// sense (sticker bindings, credentials).
var ErrNotFound = errors.New("storage: not found")

// Storage is the persistence collaborator behind settings, conversation
// contexts, sticker-command bindings and session credentials. Settings and
// conversation reads have find-or-default semantics: a missing row yields a
// zero-value record, never ErrNotFound.
type Storage interface {
	AntiDeleteSettings(ctx context.Context) (*models.AntiDeleteSettings, error)
	SaveAntiDeleteSettings(ctx context.Context, s *models.AntiDeleteSettings) error

	ViewOnceSettings(ctx context.Context) (*models.ViewOnceSettings, error)
	SaveViewOnceSettings(ctx context.Context, s *models.ViewOnceSettings) error

	AutoResponderSettings(ctx context.Context) (*models.AutoResponderSettings, error)
	SaveAutoResponderSettings(ctx context.Context, s *models.AutoResponderSettings) error

	Conversation(ctx context.Context, chatID string) (*models.Conversation, error)
	SaveConversation(ctx context.Context, c *models.Conversation) error
	ClearConversation(ctx context.Context, chatID string) error

	StickerBinding(ctx context.Context, fingerprint string) (*models.StickerBinding, error)
	SaveStickerBinding(ctx context.Context, b *models.StickerBinding) error
	DeleteStickerBinding(ctx context.Context, fingerprint string) (bool, error)
	ListStickerBindings(ctx context.Context) ([]*models.StickerBinding, error)

	Credentials(ctx context.Context) ([]byte, error)
	SaveCredentials(ctx context.Context, blob []byte) error

	Close() error
}
