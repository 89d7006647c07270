package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"user", RoleUser},
		{"assistant", RoleAssistant},
		{"system", RoleSystem},
		{" Assistant ", RoleAssistant},
		{"tool", RoleUser},
		{"", RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRole(tt.in))
		})
	}
}

func TestMessage_Visible(t *testing.T) {
	assert.True(t, AssistantMessage("tok").Visible())
	assert.False(t, AssistantMessage("").Visible())
	assert.False(t, UserMessage("hi").Visible())
	assert.False(t, SystemMessage("be nice").Visible())
	assert.False(t, Message{Role: "tool", Content: "x"}.Visible())
}

func TestMessagesFromHistory(t *testing.T) {
	msgs := MessagesFromHistory([]HistoryEntry{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "function", Content: "c"},
	})

	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "c"},
	}, msgs)

	back := HistoryFromMessages(msgs[:2])
	assert.Equal(t, []HistoryEntry{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}, back)
}
