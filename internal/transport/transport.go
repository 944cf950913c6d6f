package transport

import (
	"context"
	"errors"

	"github.com/mvalkon/chatwarden/internal/event"
)

// ErrNotConnected is returned by send primitives when the underlying session
// is gone and the call cannot be serviced.
var ErrNotConnected = errors.New("transport: not connected")

// CloseReason classifies why a session ended. The supervisor only cares
// whether the close was an explicit logout; everything else is recoverable.
type CloseReason int

const (
	CloseConnectionLost CloseReason = iota
	CloseLoggedOut
)

func (r CloseReason) Recoverable() bool { return r != CloseLoggedOut }

func (r CloseReason) String() string {
	if r == CloseLoggedOut {
		return "logged_out"
	}
	return "connection_lost"
}

// LifecycleKind tags a lifecycle notification.
type LifecycleKind int

const (
	LifecycleOpened LifecycleKind = iota
	LifecycleClosed
	LifecycleCredentialsRotated
)

// Lifecycle is a connection lifecycle notification emitted by a Conn.
type Lifecycle struct {
	Kind   LifecycleKind
	Reason CloseReason // valid when Kind == LifecycleClosed
	// Credentials carries the rotated opaque blob when
	// Kind == LifecycleCredentialsRotated. The core never interprets it.
	Credentials []byte
}

// Presence values accepted by SendPresence.
type Presence string

const (
	PresenceTyping Presence = "composing"
	PresencePaused Presence = "paused"
)

// SendOptions tweaks an outbound text message.
type SendOptions struct {
	ReplyTo  string // message ID to quote, if any
	Mentions []string
}

// OutboundMedia is a media payload to send.
type OutboundMedia struct {
	Kind      event.ContentKind
	Data      []byte
	Caption   string
	MimeType  string
	FileName  string
	VoiceNote bool
	Mentions  []string
}

// Participant is one member of a group chat.
type Participant struct {
	ID    string
	Admin bool
}

// GroupInfo describes a group chat's membership and roles.
type GroupInfo struct {
	ID           string
	Subject      string
	Participants []Participant
}

// Conn is one live session to the chat network. Channels close when the
// session ends; the final Lifecycle notification carries the close reason.
type Conn interface {
	// Events yields inbound event batches in arrival order.
	Events() <-chan []*event.Event
	// Deletions yields message-revocation notices.
	Deletions() <-chan event.Deletion
	// Lifecycle yields connection notifications (opened, closed,
	// credential rotation).
	Lifecycle() <-chan Lifecycle

	SendText(ctx context.Context, chatID, text string, opts *SendOptions) (messageID string, err error)
	SendMedia(ctx context.Context, chatID string, media OutboundMedia) (messageID string, err error)
	React(ctx context.Context, chatID, messageID, emoji string) error
	Revoke(ctx context.Context, chatID, messageID string) error
	SendPresence(ctx context.Context, chatID string, p Presence) error
	GroupInfo(ctx context.Context, chatID string) (*GroupInfo, error)
	// FetchMedia re-downloads the media a ref points at. Used both for
	// view-once forwarding and for deleted-message recovery.
	FetchMedia(ctx context.Context, ref *event.MediaRef) ([]byte, error)

	// SelfID is the session's own sender identifier.
	SelfID() string
	Close() error
}

// Dialer establishes sessions. The credential blob comes from storage and is
// opaque to the caller.
type Dialer interface {
	Dial(ctx context.Context, credentials []byte) (Conn, error)
}
