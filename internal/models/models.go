package models

import "time"

// ForwardMode selects where a recovered or forwarded message is routed.
type ForwardMode string

const (
	ForwardOff      ForwardMode = "off"    // feature disabled
	ForwardPrivate  ForwardMode = "p"      // first sudo identifier
	ForwardSameChat ForwardMode = "g"      // the original chat
	ForwardSudoOnly ForwardMode = "sudo"   // first sudo, only for sudo deleters
	ForwardTarget   ForwardMode = "target" // explicit configured chat
)

// AntiDeleteSettings configures deleted-message recovery.
type AntiDeleteSettings struct {
	Enabled      bool        `json:"enabled"`
	Mode         ForwardMode `json:"mode"`
	TargetChatID string      `json:"target_chat_id,omitempty"`
}

// ViewOnceSettings configures one-time-view media forwarding.
type ViewOnceSettings struct {
	Enabled      bool        `json:"enabled"`
	Mode         ForwardMode `json:"mode"`
	TargetChatID string      `json:"target_chat_id,omitempty"`
}

// AutoResponderSettings configures the generative auto-reply feature.
type AutoResponderSettings struct {
	Enabled     bool     `json:"enabled"`
	IgnoreList  []string `json:"ignore_list"`
	Personality string   `json:"personality"`
}

// Turn is one dialogue turn in a conversation context.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is the bounded rolling dialogue window for one chat.
type Conversation struct {
	ChatID       string    `json:"chat_id"`
	Turns        []Turn    `json:"turns"`
	LastActivity time.Time `json:"last_activity"`
}

// StickerBinding maps a media fingerprint to a command invocation.
type StickerBinding struct {
	Fingerprint string    `json:"fingerprint"`
	Command     string    `json:"command"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}
