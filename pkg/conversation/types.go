package conversation

import (
	"time"
)

// Roles for a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	// DefaultName is the display name of a conversation before its first message.
	DefaultName = "新对话"

	// GreetingPreview seeds the preview of the lazily created default conversation.
	GreetingPreview = "您好！欢迎使用食探AI"

	// StartedPreview is the preview shown for a freshly created conversation.
	StartedPreview = "新对话开始"

	// ClearedPreview is the preview shown after a conversation is emptied.
	ClearedPreview = "对话已清空"

	// MaxTurns bounds the stored history to 4 user/assistant exchanges.
	MaxTurns = 8

	namePreviewRunes    = 20
	messagePreviewRunes = 30
)

// Turn is a single user or assistant message. Turns are immutable once appended.
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Conversation is a named, ordered sequence of turns plus metadata.
// The Turns slice always holds complete user/assistant pairs, at most MaxTurns entries.
type Conversation struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Turns       []Turn    `json:"history"`
	Starred     bool      `json:"starred"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	LastMessage string    `json:"last_message"`
}

// Summary is the list view of a conversation exposed to the browser.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastMessage  string    `json:"last_message"`
	Starred      bool      `json:"starred"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
	MessageCount int       `json:"message_count"`
	IsCurrent    bool      `json:"is_current"`
}

// State is everything stored for one browser session: the conversation map and
// the id of the conversation chat requests act on. One State per session, owned
// exclusively by it.
type State struct {
	Conversations map[string]*Conversation `json:"conversations"`
	ActiveID      string                   `json:"current_conversation_id"`
}

// truncateRunes shortens s to at most n runes, appending an ellipsis when it cuts.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
