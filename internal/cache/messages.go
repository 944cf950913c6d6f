package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/event"
)

// CachedMessage retains enough of a delivered message to reconstruct it if
// the network later reports its deletion.
type CachedMessage struct {
	ChatID    string
	MessageID string
	SenderID  string
	Group     bool
	Timestamp time.Time
	Kind      event.ContentKind
	Text      string
	Media     *event.MediaRef
	HasMedia  bool
}

type chatBucket struct {
	order []string // message IDs in insertion order
	byID  map[string]*CachedMessage
}

// MessageCache holds the last N non-self messages per chat, each for at most
// maxAge. Records are read on deletion notices, never consumed.
type MessageCache struct {
	mu         sync.Mutex
	chats      map[string]*chatBucket
	maxPerChat int
	maxAge     time.Duration
	logger     *zap.Logger
}

func NewMessageCache(maxPerChat int, maxAge time.Duration, logger *zap.Logger) *MessageCache {
	return &MessageCache{
		chats:      make(map[string]*chatBucket),
		maxPerChat: maxPerChat,
		maxAge:     maxAge,
		logger:     logger,
	}
}

// Capture inserts a record for ev. Self-authored and contentless events are
// skipped. When the per-chat bound is exceeded the oldest record is evicted.
func (c *MessageCache) Capture(ev *event.Event) {
	if ev.FromMe || !ev.HasContent() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, exists := c.chats[ev.ChatID]
	if !exists {
		bucket = &chatBucket{byID: make(map[string]*CachedMessage)}
		c.chats[ev.ChatID] = bucket
	}

	if _, dup := bucket.byID[ev.ID]; !dup {
		bucket.order = append(bucket.order, ev.ID)
	}
	bucket.byID[ev.ID] = &CachedMessage{
		ChatID:    ev.ChatID,
		MessageID: ev.ID,
		SenderID:  ev.SenderID,
		Group:     ev.Group,
		Timestamp: time.Now(),
		Kind:      ev.Kind,
		Text:      ev.Text,
		Media:     ev.Media,
		HasMedia:  ev.HasMedia(),
	}

	for len(bucket.order) > c.maxPerChat {
		oldest := bucket.order[0]
		bucket.order = bucket.order[1:]
		delete(bucket.byID, oldest)
	}
}

// Lookup returns the cached record, if any. The record stays cached.
func (c *MessageCache) Lookup(chatID, messageID string) (*CachedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, exists := c.chats[chatID]
	if !exists {
		return nil, false
	}
	msg, exists := bucket.byID[messageID]
	return msg, exists
}

// Sweep removes records older than the max age and drops chat buckets left
// empty. It returns the number of removed records.
func (c *MessageCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	for chatID, bucket := range c.chats {
		kept := bucket.order[:0]
		for _, id := range bucket.order {
			msg := bucket.byID[id]
			if now.Sub(msg.Timestamp) > c.maxAge {
				delete(bucket.byID, id)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		bucket.order = kept

		if len(bucket.order) == 0 {
			delete(c.chats, chatID)
		}
	}

	if removed > 0 {
		c.logger.Debug("Swept expired messages from cache", zap.Int("removed", removed))
	}
	return removed
}

// Size reports the number of cached records for one chat.
func (c *MessageCache) Size(chatID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, exists := c.chats[chatID]
	if !exists {
		return 0
	}
	return len(bucket.order)
}
