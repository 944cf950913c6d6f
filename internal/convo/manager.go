package convo

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/models"
	"github.com/mvalkon/chatwarden/internal/storage"
)

// Manager maintains the bounded per-chat dialogue window used to prime
// generative replies. Turns are staged in memory and committed in periodic
// batches, so a burst of dialogue collapses to one write per chat per flush
// interval.
type Manager struct {
	store       storage.Storage
	logger      *zap.Logger
	maxTurns    int
	idleTimeout time.Duration
	batchSize   int

	mu      sync.Mutex
	pending map[string]*models.Conversation
}

func NewManager(store storage.Storage, maxTurns int, idleTimeout time.Duration, batchSize int, logger *zap.Logger) *Manager {
	return &Manager{
		store:       store,
		logger:      logger,
		maxTurns:    maxTurns,
		idleTimeout: idleTimeout,
		batchSize:   batchSize,
		pending:     make(map[string]*models.Conversation),
	}
}

// GetContext returns the rolling turn window for a chat. Staged turns that
// have not been flushed yet take precedence over the persisted row. A context
// idle past the timeout is cleared and returned empty.
func (m *Manager) GetContext(ctx context.Context, chatID string) ([]models.Turn, error) {
	conv, err := m.current(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if len(conv.Turns) > 0 && time.Since(conv.LastActivity) > m.idleTimeout {
		if err := m.Clear(ctx, chatID); err != nil {
			m.logger.Error("Failed to clear expired context",
				zap.Error(err),
				zap.String("chat_id", chatID))
		}
		return nil, nil
	}
	return conv.Turns, nil
}

// AddTurn appends a turn, trims to the max window size dropping the oldest
// first, and stages the result for the next flush. Nothing is written through
// immediately.
func (m *Manager) AddTurn(ctx context.Context, chatID, role, text string) error {
	conv, err := m.current(ctx, chatID)
	if err != nil {
		return err
	}

	conv.Turns = append(conv.Turns, models.Turn{Role: role, Text: text})
	if len(conv.Turns) > m.maxTurns {
		conv.Turns = conv.Turns[len(conv.Turns)-m.maxTurns:]
	}
	conv.LastActivity = time.Now()

	m.mu.Lock()
	m.pending[chatID] = conv
	m.mu.Unlock()
	return nil
}

// Clear drops the staged entry and empties the persisted context.
func (m *Manager) Clear(ctx context.Context, chatID string) error {
	m.mu.Lock()
	delete(m.pending, chatID)
	m.mu.Unlock()
	return m.store.ClearConversation(ctx, chatID)
}

// Flush drains the staged updates and commits them in fixed-size batches,
// each batch's entries concurrently. A failed commit is logged and dropped;
// it is superseded by the next flush if further turns accrue for that chat.
func (m *Manager) Flush(ctx context.Context) {
	m.mu.Lock()
	staged := m.pending
	m.pending = make(map[string]*models.Conversation)
	m.mu.Unlock()

	if len(staged) == 0 {
		return
	}

	batch := make([]*models.Conversation, 0, m.batchSize)
	commit := func() {
		var wg sync.WaitGroup
		for _, conv := range batch {
			wg.Add(1)
			go func(conv *models.Conversation) {
				defer wg.Done()
				if err := m.store.SaveConversation(ctx, conv); err != nil {
					m.logger.Error("Failed to flush conversation context",
						zap.Error(err),
						zap.String("chat_id", conv.ChatID))
				}
			}(conv)
		}
		wg.Wait()
		batch = batch[:0]
	}

	for _, conv := range staged {
		batch = append(batch, conv)
		if len(batch) == m.batchSize {
			commit()
		}
	}
	if len(batch) > 0 {
		commit()
	}

	m.logger.Debug("Flushed conversation contexts", zap.Int("chats", len(staged)))
}

// PendingCount reports the number of chats with staged, unflushed updates.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) current(ctx context.Context, chatID string) (*models.Conversation, error) {
	m.mu.Lock()
	if conv, staged := m.pending[chatID]; staged {
		copied := *conv
		copied.Turns = append([]models.Turn(nil), conv.Turns...)
		m.mu.Unlock()
		return &copied, nil
	}
	m.mu.Unlock()

	return m.store.Conversation(ctx, chatID)
}
