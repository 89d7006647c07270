package domain

import "strings"

// Role identifies the author of a message in a conversation thread.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole maps an external role name onto a Role.
// Unknown or empty names fall back to RoleUser.
func ParseRole(name string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(name))) {
	case RoleAssistant:
		return RoleAssistant
	case RoleSystem:
		return RoleSystem
	default:
		return RoleUser
	}
}

// Message is a single immutable entry in the conversation transcript.
type Message struct {
	// ID is assigned by the messages reducer when the message is first appended.
	ID      string `json:"id,omitempty"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a message authored by the user.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds a message authored by the model.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage builds a system instruction.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Visible reports whether the message may be surfaced to the caller while streaming.
// Only assistant output with content is visible; user echoes and system prompts are not.
func (m Message) Visible() bool {
	switch m.Role {
	case RoleAssistant:
		return m.Content != ""
	case RoleUser, RoleSystem:
		return false
	default:
		return false
	}
}

// HistoryEntry is the role/content representation used by archived transcripts.
type HistoryEntry struct {
	Role    string `json:"role" mapstructure:"role"`
	Content string `json:"content" mapstructure:"content"`
}

// MessagesFromHistory converts archived entries into messages, preserving order.
func MessagesFromHistory(history []HistoryEntry) []Message {
	out := make([]Message, 0, len(history))
	for _, h := range history {
		out = append(out, Message{Role: ParseRole(h.Role), Content: h.Content})
	}
	return out
}

// HistoryFromMessages is the inverse of MessagesFromHistory.
func HistoryFromMessages(msgs []Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryEntry{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Chunk is an incremental piece of model output, as produced by a streaming model.
type Chunk struct {
	Message  Message        `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
