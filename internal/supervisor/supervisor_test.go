package supervisor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/transport"
	"github.com/mvalkon/chatwarden/internal/transport/transporttest"
)

func runSupervisor(t *testing.T, s *Supervisor, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop in time")
		return nil
	}
}

func TestLoggedOutSessionIsNotReconnected(t *testing.T) {
	conn := transporttest.NewConn()
	dialer := transporttest.NewDialer(conn)
	s := New(dialer, storage.NewMemoryStorage(), Handlers{}, time.Millisecond, zap.NewNop())

	done := runSupervisor(t, s, context.Background())
	conn.EmitOpen()
	conn.EmitClose(transport.CloseLoggedOut)

	if err := waitErr(t, done); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("expected ErrLoggedOut, got %v", err)
	}
	if dialer.Dials() != 1 {
		t.Errorf("expected a single dial, got %d", dialer.Dials())
	}
	if s.State() != StateClosedTerminal {
		t.Errorf("expected terminal state, got %s", s.State())
	}
	if !conn.Closed() {
		t.Error("expected the connection to be closed")
	}
}

func TestRecoverableCloseTriggersReconnect(t *testing.T) {
	first := transporttest.NewConn()
	second := transporttest.NewConn()
	dialer := transporttest.NewDialer(first, second)

	var mu sync.Mutex
	ready := 0
	s := New(dialer, storage.NewMemoryStorage(), Handlers{
		OnReady: func(conn transport.Conn) {
			mu.Lock()
			ready++
			mu.Unlock()
		},
	}, time.Millisecond, zap.NewNop())

	done := runSupervisor(t, s, context.Background())
	first.EmitOpen()
	first.EmitClose(transport.CloseConnectionLost)
	second.EmitOpen()
	second.EmitClose(transport.CloseLoggedOut)

	waitErr(t, done)

	if dialer.Dials() != 2 {
		t.Errorf("expected 2 dials, got %d", dialer.Dials())
	}
	mu.Lock()
	defer mu.Unlock()
	if ready != 2 {
		t.Errorf("expected OnReady per session, got %d", ready)
	}
}

func TestEventsAndDeletionsReachHandlersInOrder(t *testing.T) {
	conn := transporttest.NewConn()
	dialer := transporttest.NewDialer(conn)

	var mu sync.Mutex
	var seen []string
	s := New(dialer, storage.NewMemoryStorage(), Handlers{
		OnEvents: func(ctx context.Context, c transport.Conn, events []*event.Event) {
			mu.Lock()
			for _, ev := range events {
				seen = append(seen, "event:"+ev.ID)
			}
			mu.Unlock()
		},
		OnDeletion: func(ctx context.Context, c transport.Conn, del event.Deletion) {
			mu.Lock()
			seen = append(seen, "deletion:"+del.MessageID)
			mu.Unlock()
		},
	}, time.Millisecond, zap.NewNop())

	done := runSupervisor(t, s, context.Background())
	conn.EmitOpen()
	conn.EmitEvents(&event.Event{ID: "m1"}, &event.Event{ID: "m2"})
	conn.EmitEvents(&event.Event{ID: "m3"})
	conn.EmitDeletion(event.Deletion{MessageID: "m1"})
	conn.EmitClose(transport.CloseLoggedOut)
	waitErr(t, done)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"event:m1", "event:m2", "event:m3", "deletion:m1"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d deliveries, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("delivery %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestRotatedCredentialsArePersisted(t *testing.T) {
	conn := transporttest.NewConn()
	dialer := transporttest.NewDialer(conn)
	store := storage.NewMemoryStorage()
	s := New(dialer, store, Handlers{}, time.Millisecond, zap.NewNop())

	done := runSupervisor(t, s, context.Background())
	conn.EmitOpen()
	conn.EmitRotation([]byte("fresh-session-keys"))
	conn.EmitClose(transport.CloseLoggedOut)
	waitErr(t, done)

	saved, err := store.Credentials(context.Background())
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if !bytes.Equal(saved, []byte("fresh-session-keys")) {
		t.Errorf("expected rotated credentials persisted, got %q", saved)
	}
}

func TestStoredCredentialsArePassedToDial(t *testing.T) {
	conn := transporttest.NewConn()
	dialer := transporttest.NewDialer(conn)
	store := storage.NewMemoryStorage()
	if err := store.SaveCredentials(context.Background(), []byte("prior-session")); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	s := New(dialer, store, Handlers{}, time.Millisecond, zap.NewNop())

	done := runSupervisor(t, s, context.Background())
	conn.EmitOpen()
	conn.EmitClose(transport.CloseLoggedOut)
	waitErr(t, done)

	creds := dialer.DialCredentials()
	if len(creds) != 1 || !bytes.Equal(creds[0], []byte("prior-session")) {
		t.Errorf("expected stored credentials on dial, got %v", creds)
	}
}

func TestCancellationStopsTheLoop(t *testing.T) {
	conn := transporttest.NewConn()
	dialer := transporttest.NewDialer(conn)
	s := New(dialer, storage.NewMemoryStorage(), Handlers{}, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(t, s, ctx)
	conn.EmitOpen()
	cancel()

	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDialFailureRetries(t *testing.T) {
	// An empty script makes every dial fail; cancel after a few retries.
	dialer := transporttest.NewDialer()
	s := New(dialer, storage.NewMemoryStorage(), Handlers{}, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := runSupervisor(t, s, ctx)

	deadline := time.Now().Add(time.Second)
	for dialer.Dials() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	waitErr(t, done)

	if dialer.Dials() < 3 {
		t.Errorf("expected repeated dial attempts, got %d", dialer.Dials())
	}
}
