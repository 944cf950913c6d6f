// Package telegram adapts the Telegram Bot API onto the transport contract.
// The Bot API authenticates with a static token, so the credential blob and
// rotation notifications are unused here; other networks rotate session keys
// and need both.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/transport"
)

const updateTimeout = 60 // long-poll timeout, seconds

// Dialer establishes Bot API sessions.
type Dialer struct {
	token  string
	logger *zap.Logger
}

func NewDialer(token string, logger *zap.Logger) *Dialer {
	return &Dialer{token: token, logger: logger}
}

func (d *Dialer) Dial(ctx context.Context, credentials []byte) (transport.Conn, error) {
	api, err := tgbotapi.NewBotAPI(d.token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	conn := &Conn{
		api:       api,
		rest:      resty.New(),
		selfID:    strconv.FormatInt(api.Self.ID, 10),
		events:    make(chan []*event.Event, 16),
		deletions: make(chan event.Deletion),
		lifecycle: make(chan transport.Lifecycle, 4),
		done:      make(chan struct{}),
		logger:    d.logger,
	}

	go conn.pump()
	return conn, nil
}

// Conn is one live Bot API session. The Bot API does not deliver deletion
// notices, so the Deletions channel never fires on this transport.
type Conn struct {
	api       *tgbotapi.BotAPI
	rest      *resty.Client
	selfID    string
	events    chan []*event.Event
	deletions chan event.Deletion
	lifecycle chan transport.Lifecycle
	done      chan struct{}
	logger    *zap.Logger
}

func (c *Conn) Events() <-chan []*event.Event         { return c.events }
func (c *Conn) Deletions() <-chan event.Deletion      { return c.deletions }
func (c *Conn) Lifecycle() <-chan transport.Lifecycle { return c.lifecycle }
func (c *Conn) SelfID() string                        { return c.selfID }

func (c *Conn) pump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := c.api.GetUpdatesChan(u)

	c.lifecycle <- transport.Lifecycle{Kind: transport.LifecycleOpened}

	for {
		select {
		case <-c.done:
			return
		case update, ok := <-updates:
			if !ok {
				c.lifecycle <- transport.Lifecycle{
					Kind:   transport.LifecycleClosed,
					Reason: transport.CloseConnectionLost,
				}
				return
			}
			if update.Message == nil {
				continue
			}
			ev := c.normalize(update.Message)
			select {
			case c.events <- []*event.Event{ev}:
			case <-c.done:
				return
			}
		}
	}
}

// normalize maps one Telegram message onto the tagged event model.
func (c *Conn) normalize(msg *tgbotapi.Message) *event.Event {
	ev := &event.Event{
		ID:        strconv.Itoa(msg.MessageID),
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		Group:     msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
		Kind:      event.KindText,
		Text:      msg.Text,
		Timestamp: msg.Time(),
	}
	if msg.From != nil {
		ev.SenderID = strconv.FormatInt(msg.From.ID, 10)
		ev.FromMe = msg.From.ID == c.api.Self.ID
	}
	if msg.Caption != "" {
		ev.Text = msg.Caption
	}

	ev.Kind, ev.Media = contentOf(msg)
	if msg.ReplyToMessage != nil {
		quoted := &event.Quoted{
			MessageID: strconv.Itoa(msg.ReplyToMessage.MessageID),
		}
		if msg.ReplyToMessage.From != nil {
			quoted.SenderID = strconv.FormatInt(msg.ReplyToMessage.From.ID, 10)
		}
		quoted.Kind, quoted.Media = contentOf(msg.ReplyToMessage)
		ev.Quoted = quoted
	}
	for _, entity := range msg.Entities {
		if entity.Type == "mention" && entity.User != nil {
			ev.Mentions = append(ev.Mentions, strconv.FormatInt(entity.User.ID, 10))
		}
	}
	return ev
}

func contentOf(msg *tgbotapi.Message) (event.ContentKind, *event.MediaRef) {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[len(msg.Photo)-1]
		return event.KindImage, &event.MediaRef{
			Handle:      best.FileID,
			Fingerprint: best.FileUniqueID,
			MimeType:    "image/jpeg",
		}
	case msg.Video != nil:
		return event.KindVideo, &event.MediaRef{
			Handle:      msg.Video.FileID,
			Fingerprint: msg.Video.FileUniqueID,
			MimeType:    msg.Video.MimeType,
		}
	case msg.Voice != nil:
		return event.KindAudio, &event.MediaRef{
			Handle:      msg.Voice.FileID,
			Fingerprint: msg.Voice.FileUniqueID,
			MimeType:    msg.Voice.MimeType,
			VoiceNote:   true,
		}
	case msg.Audio != nil:
		return event.KindAudio, &event.MediaRef{
			Handle:      msg.Audio.FileID,
			Fingerprint: msg.Audio.FileUniqueID,
			MimeType:    msg.Audio.MimeType,
			FileName:    msg.Audio.FileName,
		}
	case msg.Sticker != nil:
		return event.KindSticker, &event.MediaRef{
			Handle:      msg.Sticker.FileID,
			Fingerprint: msg.Sticker.FileUniqueID,
			MimeType:    "image/webp",
		}
	case msg.Document != nil:
		return event.KindDocument, &event.MediaRef{
			Handle:      msg.Document.FileID,
			Fingerprint: msg.Document.FileUniqueID,
			MimeType:    msg.Document.MimeType,
			FileName:    msg.Document.FileName,
		}
	case msg.Poll != nil:
		return event.KindPoll, nil
	case msg.Location != nil:
		return event.KindLocation, nil
	case msg.Contact != nil:
		return event.KindContact, nil
	case msg.Text != "":
		return event.KindText, nil
	default:
		return event.KindUnknown, nil
	}
}

func (c *Conn) SendText(ctx context.Context, chatID, text string, opts *transport.SendOptions) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(id, text)
	if opts != nil && opts.ReplyTo != "" {
		if replyID, err := strconv.Atoi(opts.ReplyTo); err == nil {
			msg.ReplyToMessageID = replyID
		}
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

func (c *Conn) SendMedia(ctx context.Context, chatID string, media transport.OutboundMedia) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}

	file := tgbotapi.FileBytes{Name: fileName(media), Bytes: media.Data}

	var msg tgbotapi.Chattable
	switch media.Kind {
	case event.KindImage:
		photo := tgbotapi.NewPhoto(id, file)
		photo.Caption = media.Caption
		msg = photo
	case event.KindVideo:
		video := tgbotapi.NewVideo(id, file)
		video.Caption = media.Caption
		msg = video
	case event.KindAudio:
		audio := tgbotapi.NewAudio(id, file)
		audio.Caption = media.Caption
		msg = audio
	case event.KindSticker:
		msg = tgbotapi.NewSticker(id, file)
	case event.KindDocument:
		document := tgbotapi.NewDocument(id, file)
		document.Caption = media.Caption
		msg = document
	default:
		return "", fmt.Errorf("unsupported outbound media kind %q", media.Kind)
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return "", fmt.Errorf("sending media: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// React is a no-op: the Bot API client in use predates message reactions.
func (c *Conn) React(ctx context.Context, chatID, messageID, emoji string) error {
	return nil
}

func (c *Conn) Revoke(ctx context.Context, chatID, messageID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(id, msgID)); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

func (c *Conn) SendPresence(ctx context.Context, chatID string, p transport.Presence) error {
	if p != transport.PresenceTyping {
		// The Bot API has no way to clear a chat action, it times out.
		return nil
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("sending chat action: %w", err)
	}
	return nil
}

func (c *Conn) GroupInfo(ctx context.Context, chatID string) (*transport.GroupInfo, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}

	chat, err := c.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return nil, fmt.Errorf("getting chat: %w", err)
	}

	admins, err := c.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return nil, fmt.Errorf("getting chat administrators: %w", err)
	}

	info := &transport.GroupInfo{ID: chatID, Subject: chat.Title}
	for _, member := range admins {
		if member.User == nil {
			continue
		}
		info.Participants = append(info.Participants, transport.Participant{
			ID:    strconv.FormatInt(member.User.ID, 10),
			Admin: true,
		})
	}
	return info, nil
}

func (c *Conn) FetchMedia(ctx context.Context, ref *event.MediaRef) ([]byte, error) {
	if ref == nil || ref.Handle == "" {
		return nil, fmt.Errorf("no media reference")
	}

	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: ref.Handle})
	if err != nil {
		return nil, fmt.Errorf("resolving file: %w", err)
	}

	resp, err := c.rest.R().SetContext(ctx).Get(file.Link(c.api.Token))
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func (c *Conn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.api.StopReceivingUpdates()
	return nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}

func fileName(media transport.OutboundMedia) string {
	if media.FileName != "" {
		return media.FileName
	}
	switch media.Kind {
	case event.KindImage:
		return "photo.jpg"
	case event.KindVideo:
		return "video.mp4"
	case event.KindAudio:
		return "audio.ogg"
	case event.KindSticker:
		return "sticker.webp"
	default:
		return "file"
	}
}
