package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/transport"
)

// ErrLoggedOut is returned by Run after an explicit logout. The session will
// not be re-established without operator intervention (re-authentication).
var ErrLoggedOut = errors.New("supervisor: session logged out")

// State of the logical session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosedRecoverable
	StateClosedTerminal
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosedRecoverable:
		return "closed_recoverable"
	case StateClosedTerminal:
		return "closed_terminal"
	default:
		return "disconnected"
	}
}

// Handlers receive what the session produces. All callbacks run on the
// supervisor's single processing goroutine, preserving arrival order.
type Handlers struct {
	OnEvents   func(ctx context.Context, conn transport.Conn, events []*event.Event)
	OnDeletion func(ctx context.Context, conn transport.Conn, del event.Deletion)
	OnReady    func(conn transport.Conn)
}

// Supervisor keeps the single logical session alive: it dials, forwards
// inbound traffic, persists rotated credentials and reconnects after any
// close that is not an explicit logout.
type Supervisor struct {
	dialer   transport.Dialer
	store    storage.Storage
	handlers Handlers
	backoff  time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	state State
}

func New(dialer transport.Dialer, store storage.Storage, handlers Handlers, backoff time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		dialer:   dialer,
		store:    store,
		handlers: handlers,
		backoff:  backoff,
		logger:   logger,
		state:    StateDisconnected,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.logger.Info("Session state changed",
			zap.String("from", prev.String()),
			zap.String("to", next.String()))
	}
}

// Run drives the reconnect loop until ctx is cancelled or the session is
// explicitly logged out. Handshake failures retry through the same
// recoverable path, indefinitely.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		s.setState(StateConnecting)

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("Failed to establish session", zap.Error(err))
			s.setState(StateClosedRecoverable)
			if err := s.wait(ctx); err != nil {
				return err
			}
			continue
		}

		// Each established session gets its own identifier so log lines
		// from overlapping reconnects can be told apart.
		sessionID := uuid.NewString()
		s.logger.Info("Session established", zap.String("session_id", sessionID))

		reason := s.session(ctx, conn)
		conn.Close()

		s.logger.Info("Session ended",
			zap.String("session_id", sessionID),
			zap.String("reason", reason.String()))

		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return ctx.Err()
		}

		if !reason.Recoverable() {
			s.setState(StateClosedTerminal)
			s.logger.Error("Session logged out, not reconnecting")
			return ErrLoggedOut
		}

		s.setState(StateClosedRecoverable)
		s.logger.Info("Session closed, reconnecting",
			zap.String("reason", reason.String()),
			zap.Duration("backoff", s.backoff))
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

func (s *Supervisor) dial(ctx context.Context) (transport.Conn, error) {
	credentials, err := s.store.Credentials(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("Failed to load session credentials, dialing without", zap.Error(err))
		credentials = nil
	}
	return s.dialer.Dial(ctx, credentials)
}

// session forwards the connection's traffic until it closes and returns the
// close reason.
func (s *Supervisor) session(ctx context.Context, conn transport.Conn) transport.CloseReason {
	events := conn.Events()
	deletions := conn.Deletions()
	lifecycle := conn.Lifecycle()

	for {
		select {
		case <-ctx.Done():
			return transport.CloseConnectionLost

		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.handlers.OnEvents != nil {
				s.handlers.OnEvents(ctx, conn, batch)
			}

		case del, ok := <-deletions:
			if !ok {
				deletions = nil
				continue
			}
			if s.handlers.OnDeletion != nil {
				s.handlers.OnDeletion(ctx, conn, del)
			}

		case notice, ok := <-lifecycle:
			if !ok {
				return transport.CloseConnectionLost
			}
			switch notice.Kind {
			case transport.LifecycleOpened:
				s.setState(StateReady)
				if s.handlers.OnReady != nil {
					s.handlers.OnReady(conn)
				}

			case transport.LifecycleCredentialsRotated:
				// Best effort: a persistence failure must not take
				// the session down.
				if err := s.store.SaveCredentials(ctx, notice.Credentials); err != nil {
					s.logger.Error("Failed to persist rotated credentials", zap.Error(err))
				}

			case transport.LifecycleClosed:
				return notice.Reason
			}
		}
	}
}

func (s *Supervisor) wait(ctx context.Context) error {
	timer := time.NewTimer(s.backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
