// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/transport"
)

// SentText records one SendText call.
type SentText struct {
	ChatID string
	Text   string
	Opts   *transport.SendOptions
}

// SentMedia records one SendMedia call.
type SentMedia struct {
	ChatID string
	Media  transport.OutboundMedia
}

// Conn is a scriptable transport.Conn. Outbound calls are recorded, inbound
// traffic is injected through the Emit helpers.
type Conn struct {
	Self string

	// Scripted failures.
	TextErr       error
	MediaErr      error
	FetchErr      error
	FetchedMedia  []byte
	GroupInfoResp *transport.GroupInfo

	mu        sync.Mutex
	sentCount int
	texts     []SentText
	media     []SentMedia
	presences []transport.Presence

	events    chan []*event.Event
	deletions chan event.Deletion
	lifecycle chan transport.Lifecycle
	closeOnce sync.Once
	closed    chan struct{}
}

func NewConn() *Conn {
	return &Conn{
		Self:      "self",
		events:    make(chan []*event.Event, 16),
		deletions: make(chan event.Deletion, 16),
		lifecycle: make(chan transport.Lifecycle, 16),
		closed:    make(chan struct{}),
	}
}

func (c *Conn) Events() <-chan []*event.Event         { return c.events }
func (c *Conn) Deletions() <-chan event.Deletion      { return c.deletions }
func (c *Conn) Lifecycle() <-chan transport.Lifecycle { return c.lifecycle }
func (c *Conn) SelfID() string                        { return c.Self }

// EmitOpen injects the session-opened notice.
func (c *Conn) EmitOpen() {
	c.lifecycle <- transport.Lifecycle{Kind: transport.LifecycleOpened}
}

// EmitEvents injects one inbound batch.
func (c *Conn) EmitEvents(events ...*event.Event) {
	c.events <- events
}

// EmitDeletion injects one deletion notice.
func (c *Conn) EmitDeletion(del event.Deletion) {
	c.deletions <- del
}

// EmitRotation injects a credentials-rotated notice.
func (c *Conn) EmitRotation(credentials []byte) {
	c.lifecycle <- transport.Lifecycle{
		Kind:        transport.LifecycleCredentialsRotated,
		Credentials: credentials,
	}
}

// EmitClose injects the closed notice with the given reason.
func (c *Conn) EmitClose(reason transport.CloseReason) {
	c.lifecycle <- transport.Lifecycle{Kind: transport.LifecycleClosed, Reason: reason}
}

func (c *Conn) SendText(ctx context.Context, chatID, text string, opts *transport.SendOptions) (string, error) {
	if c.TextErr != nil {
		return "", c.TextErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentCount++
	c.texts = append(c.texts, SentText{ChatID: chatID, Text: text, Opts: opts})
	return fmt.Sprintf("sent-%d", c.sentCount), nil
}

func (c *Conn) SendMedia(ctx context.Context, chatID string, media transport.OutboundMedia) (string, error) {
	if c.MediaErr != nil {
		return "", c.MediaErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentCount++
	c.media = append(c.media, SentMedia{ChatID: chatID, Media: media})
	return fmt.Sprintf("sent-%d", c.sentCount), nil
}

func (c *Conn) React(ctx context.Context, chatID, messageID, emoji string) error { return nil }

func (c *Conn) Revoke(ctx context.Context, chatID, messageID string) error { return nil }

func (c *Conn) SendPresence(ctx context.Context, chatID string, p transport.Presence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presences = append(c.presences, p)
	return nil
}

func (c *Conn) GroupInfo(ctx context.Context, chatID string) (*transport.GroupInfo, error) {
	if c.GroupInfoResp == nil {
		return &transport.GroupInfo{ID: chatID}, nil
	}
	return c.GroupInfoResp, nil
}

func (c *Conn) FetchMedia(ctx context.Context, ref *event.MediaRef) ([]byte, error) {
	if c.FetchErr != nil {
		return nil, c.FetchErr
	}
	if c.FetchedMedia != nil {
		return c.FetchedMedia, nil
	}
	return []byte("media"), nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Texts returns a snapshot of recorded SendText calls.
func (c *Conn) Texts() []SentText {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentText(nil), c.texts...)
}

// Media returns a snapshot of recorded SendMedia calls.
func (c *Conn) Media() []SentMedia {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMedia(nil), c.media...)
}

// Presences returns a snapshot of recorded presence updates.
func (c *Conn) Presences() []transport.Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Presence(nil), c.presences...)
}

// Dialer hands out scripted connections in order. Dial fails once the script
// is exhausted.
type Dialer struct {
	mu    sync.Mutex
	conns []*Conn
	dials int
	creds [][]byte
}

func NewDialer(conns ...*Conn) *Dialer {
	return &Dialer{conns: conns}
}

func (d *Dialer) Dial(ctx context.Context, credentials []byte) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = append(d.creds, credentials)
	if d.dials >= len(d.conns) {
		d.dials++
		return nil, fmt.Errorf("no scripted connection for dial %d", d.dials)
	}
	conn := d.conns[d.dials]
	d.dials++
	return conn, nil
}

// Dials reports how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// DialCredentials returns the credential blobs passed to each dial.
func (d *Dialer) DialCredentials() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.creds...)
}
