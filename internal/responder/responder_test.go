package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/cache"
	"github.com/mvalkon/chatwarden/internal/convo"
	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/models"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/transport"
	"github.com/mvalkon/chatwarden/internal/transport/transporttest"
)

// scriptedGenerator returns a fixed reply and records what it was asked.
type scriptedGenerator struct {
	reply       string
	err         error
	calls       int
	personality string
	history     []models.Turn
	message     string
}

func (g *scriptedGenerator) Generate(ctx context.Context, personality string, history []models.Turn, message string) (string, error) {
	g.calls++
	g.personality = personality
	g.history = append([]models.Turn(nil), history...)
	g.message = message
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func newResponder(t *testing.T, store storage.Storage, gen Generator) *Responder {
	t.Helper()
	logger := zap.NewNop()
	return New(
		cache.NewSettingsCache(time.Minute, logger),
		store,
		convo.NewManager(store, 10, 30*time.Minute, 8, logger),
		gen,
		"default personality",
		logger,
	)
}

func enable(t *testing.T, store storage.Storage, settings *models.AutoResponderSettings) {
	t.Helper()
	if err := store.SaveAutoResponderSettings(context.Background(), settings); err != nil {
		t.Fatalf("SaveAutoResponderSettings: %v", err)
	}
}

func directText(id, sender, text string) *event.Event {
	return &event.Event{ID: id, ChatID: sender, SenderID: sender, Kind: event.KindText, Text: text}
}

func TestRespondsToDirectTextWhenEnabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	enable(t, store, &models.AutoResponderSettings{Enabled: true})
	gen := &scriptedGenerator{reply: "hi there"}
	r := newResponder(t, store, gen)
	conn := transporttest.NewConn()

	handled, err := r.HandleMessage(context.Background(), conn, directText("m1", "alice", "hello"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !handled {
		t.Fatal("expected the message to be answered")
	}

	texts := conn.Texts()
	if len(texts) != 1 || texts[0].Text != "hi there" {
		t.Errorf("expected generated reply, got %+v", texts)
	}
	if texts[0].Opts == nil || texts[0].Opts.ReplyTo != "m1" {
		t.Error("expected the answer to quote the inbound message")
	}
	if gen.message != "hello" {
		t.Errorf("expected inbound text passed to generator, got %q", gen.message)
	}
	if gen.personality != "default personality" {
		t.Errorf("expected default personality, got %q", gen.personality)
	}

	presences := conn.Presences()
	if len(presences) != 2 || presences[0] != transport.PresenceTyping || presences[1] != transport.PresencePaused {
		t.Errorf("expected typing then paused presence, got %v", presences)
	}
}

func TestIgnoresGroupsSelfAndNonText(t *testing.T) {
	store := storage.NewMemoryStorage()
	enable(t, store, &models.AutoResponderSettings{Enabled: true})
	r := newResponder(t, store, &scriptedGenerator{reply: "x"})
	conn := transporttest.NewConn()
	ctx := context.Background()

	group := directText("m1", "alice", "hello")
	group.Group = true

	self := directText("m2", "alice", "hello")
	self.FromMe = true

	sticker := directText("m3", "alice", "")
	sticker.Kind = event.KindSticker

	for _, ev := range []*event.Event{group, self, sticker} {
		handled, err := r.HandleMessage(ctx, conn, ev)
		if err != nil {
			t.Fatalf("HandleMessage(%s): %v", ev.ID, err)
		}
		if handled {
			t.Errorf("expected %s to be declined", ev.ID)
		}
	}
	if len(conn.Texts()) != 0 {
		t.Errorf("expected no replies, got %d", len(conn.Texts()))
	}
}

func TestDisabledByDefault(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := newResponder(t, store, &scriptedGenerator{reply: "x"})
	conn := transporttest.NewConn()

	handled, err := r.HandleMessage(context.Background(), conn, directText("m1", "alice", "hello"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if handled {
		t.Error("expected no reply without enabling the responder")
	}
}

func TestIgnoreListIsHonored(t *testing.T) {
	store := storage.NewMemoryStorage()
	enable(t, store, &models.AutoResponderSettings{Enabled: true, IgnoreList: []string{"alice"}})
	gen := &scriptedGenerator{reply: "x"}
	r := newResponder(t, store, gen)
	conn := transporttest.NewConn()

	handled, err := r.HandleMessage(context.Background(), conn, directText("m1", "alice", "hello"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if handled || gen.calls != 0 {
		t.Error("expected ignored sender to be skipped")
	}

	handled, err = r.HandleMessage(context.Background(), conn, directText("m2", "bob", "hello"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !handled {
		t.Error("expected unlisted sender to be answered")
	}
}

func TestConfiguredPersonalityOverridesDefault(t *testing.T) {
	store := storage.NewMemoryStorage()
	enable(t, store, &models.AutoResponderSettings{Enabled: true, Personality: "pirate"})
	gen := &scriptedGenerator{reply: "arr"}
	r := newResponder(t, store, gen)

	if _, err := r.HandleMessage(context.Background(), transporttest.NewConn(), directText("m1", "alice", "hi")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if gen.personality != "pirate" {
		t.Errorf("expected configured personality, got %q", gen.personality)
	}
}

func TestDialogueHistoryAccrues(t *testing.T) {
	store := storage.NewMemoryStorage()
	enable(t, store, &models.AutoResponderSettings{Enabled: true})
	gen := &scriptedGenerator{reply: "answer"}
	r := newResponder(t, store, gen)
	conn := transporttest.NewConn()
	ctx := context.Background()

	if _, err := r.HandleMessage(ctx, conn, directText("m1", "alice", "first")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(gen.history) != 0 {
		t.Errorf("first exchange should see empty history, got %+v", gen.history)
	}

	if _, err := r.HandleMessage(ctx, conn, directText("m2", "alice", "second")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(gen.history) != 2 {
		t.Fatalf("second exchange should see the first, got %+v", gen.history)
	}
	if gen.history[0].Role != models.RoleUser || gen.history[0].Text != "first" {
		t.Errorf("unexpected first turn: %+v", gen.history[0])
	}
	if gen.history[1].Role != models.RoleAssistant || gen.history[1].Text != "answer" {
		t.Errorf("unexpected second turn: %+v", gen.history[1])
	}
}

func TestGeneratorFailureDeclinesWithoutReply(t *testing.T) {
	store := storage.NewMemoryStorage()
	enable(t, store, &models.AutoResponderSettings{Enabled: true})
	r := newResponder(t, store, &scriptedGenerator{err: errors.New("model unavailable")})
	conn := transporttest.NewConn()

	handled, err := r.HandleMessage(context.Background(), conn, directText("m1", "alice", "hello"))
	if err == nil {
		t.Fatal("expected the generator failure to surface")
	}
	if handled {
		t.Error("expected the event to stay unconsumed on failure")
	}
	if len(conn.Texts()) != 0 {
		t.Error("expected no reply on generator failure")
	}
}

func TestNilGeneratorStaysDormant(t *testing.T) {
	store := storage.NewMemoryStorage()
	enable(t, store, &models.AutoResponderSettings{Enabled: true})
	r := newResponder(t, store, nil)

	handled, err := r.HandleMessage(context.Background(), transporttest.NewConn(), directText("m1", "alice", "hello"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if handled {
		t.Error("expected the responder to decline without a generator")
	}
}
