package convo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/models"
	"github.com/mvalkon/chatwarden/internal/storage"
)

// countingStore wraps the in-memory store and counts conversation writes.
type countingStore struct {
	storage.Storage

	mu    sync.Mutex
	saves int
}

func newCountingStore() *countingStore {
	return &countingStore{Storage: storage.NewMemoryStorage()}
}

func (s *countingStore) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Storage.SaveConversation(ctx, conv)
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestAddTurnIsVisibleBeforeFlush(t *testing.T) {
	store := newCountingStore()
	m := NewManager(store, 10, 30*time.Minute, 8, zap.NewNop())
	ctx := context.Background()

	if err := m.AddTurn(ctx, "chat-1", models.RoleUser, "hi"); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}
	if err := m.AddTurn(ctx, "chat-1", models.RoleAssistant, "hello"); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}

	turns, err := m.GetContext(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 staged turns, got %d", len(turns))
	}
	if turns[0].Text != "hi" || turns[1].Text != "hello" {
		t.Errorf("unexpected turn order: %+v", turns)
	}
	if store.saveCount() != 0 {
		t.Errorf("expected no writes before flush, got %d", store.saveCount())
	}
}

func TestAddTurnTrimsOldestPastWindow(t *testing.T) {
	m := NewManager(newCountingStore(), 3, 30*time.Minute, 8, zap.NewNop())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := m.AddTurn(ctx, "chat-1", models.RoleUser, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
	}

	turns, err := m.GetContext(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected window of 3 turns, got %d", len(turns))
	}
	if turns[0].Text != "turn 3" || turns[2].Text != "turn 5" {
		t.Errorf("expected oldest turns dropped, got %+v", turns)
	}
}

func TestFlushWritesOncePerChat(t *testing.T) {
	store := newCountingStore()
	m := NewManager(store, 10, 30*time.Minute, 2, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := m.AddTurn(ctx, "chat-1", models.RoleUser, "a"); err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if err := m.AddTurn(ctx, "chat-2", models.RoleUser, "b"); err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
	}
	if m.PendingCount() != 2 {
		t.Fatalf("expected 2 pending chats, got %d", m.PendingCount())
	}

	m.Flush(ctx)

	if store.saveCount() != 2 {
		t.Errorf("expected one write per chat, got %d", store.saveCount())
	}
	if m.PendingCount() != 0 {
		t.Errorf("expected pending drained, got %d", m.PendingCount())
	}

	conv, err := store.Conversation(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(conv.Turns) != 6 {
		t.Errorf("expected 6 persisted turns, got %d", len(conv.Turns))
	}
}

func TestFlushWithNothingStagedWritesNothing(t *testing.T) {
	store := newCountingStore()
	m := NewManager(store, 10, 30*time.Minute, 8, zap.NewNop())

	m.Flush(context.Background())

	if store.saveCount() != 0 {
		t.Errorf("expected no writes, got %d", store.saveCount())
	}
}

func TestGetContextClearsIdleConversation(t *testing.T) {
	store := newCountingStore()
	m := NewManager(store, 10, time.Millisecond, 8, zap.NewNop())
	ctx := context.Background()

	if err := m.AddTurn(ctx, "chat-1", models.RoleUser, "hi"); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	turns, err := m.GetContext(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected idle context cleared, got %d turns", len(turns))
	}

	// The staged entry is gone too, the next turn starts fresh.
	if err := m.AddTurn(ctx, "chat-1", models.RoleUser, "new topic"); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}
	turns, _ = m.GetContext(ctx, "chat-1")
	if len(turns) != 1 || turns[0].Text != "new topic" {
		t.Errorf("expected a fresh single-turn context, got %+v", turns)
	}
}

func TestClearDropsStagedAndPersisted(t *testing.T) {
	store := newCountingStore()
	m := NewManager(store, 10, 30*time.Minute, 8, zap.NewNop())
	ctx := context.Background()

	if err := m.AddTurn(ctx, "chat-1", models.RoleUser, "hi"); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}
	m.Flush(ctx)
	if err := m.AddTurn(ctx, "chat-1", models.RoleUser, "more"); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}

	if err := m.Clear(ctx, "chat-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	turns, err := m.GetContext(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty context after clear, got %+v", turns)
	}
}
