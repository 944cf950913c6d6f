package event

import "time"

// ContentKind discriminates the payload of a normalized inbound event.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindImage    ContentKind = "image"
	KindVideo    ContentKind = "video"
	KindAudio    ContentKind = "audio"
	KindSticker  ContentKind = "sticker"
	KindDocument ContentKind = "document"
	KindPoll     ContentKind = "poll"
	KindLocation ContentKind = "location"
	KindContact  ContentKind = "contact"
	KindProtocol ContentKind = "protocol"
	KindUnknown  ContentKind = "unknown"
)

// MediaRef identifies a media payload well enough to re-fetch it from the
// transport later, without holding the bytes in memory.
type MediaRef struct {
	// Handle is the transport-specific reference used for re-download.
	Handle string
	// Fingerprint is a stable content hash (hex), used for sticker-command
	// bindings. Empty when the transport does not expose one.
	Fingerprint string
	MimeType    string
	FileName    string
	VoiceNote   bool
}

// Quoted references the message an event replies to.
type Quoted struct {
	MessageID string
	SenderID  string
	Kind      ContentKind
	ViewOnce  bool
	Media     *MediaRef
}

// Event is the normalized view of one raw transport message. It is
// constructed once by the transport adapter and never mutated afterwards,
// with the single exception of the stealth-binding rewrite in dispatch.
type Event struct {
	ID        string
	ChatID    string
	SenderID  string
	FromMe    bool
	Group     bool
	Kind      ContentKind
	Text      string
	Quoted    *Quoted
	Media     *MediaRef
	ViewOnce  bool
	Mentions  []string
	Timestamp time.Time
}

// HasMedia reports whether the event carries a downloadable media payload.
func (e *Event) HasMedia() bool {
	switch e.Kind {
	case KindImage, KindVideo, KindAudio, KindSticker, KindDocument:
		return e.Media != nil
	default:
		return false
	}
}

// HasContent reports whether there is anything worth caching: either text or
// a media payload. Protocol and unknown events are contentless.
func (e *Event) HasContent() bool {
	if e.Kind == KindProtocol || e.Kind == KindUnknown {
		return false
	}
	return e.Text != "" || e.HasMedia()
}

// Deletion is a transport notification that a previously delivered message
// was revoked by its sender or a chat admin.
type Deletion struct {
	ChatID    string
	MessageID string
	DeleterID string
}
