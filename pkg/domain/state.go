package domain

import "maps"

// FieldMessages is the reserved name of the append-only transcript field.
const FieldMessages = "messages"

// State is the shared record threaded through the graph during a turn.
type State struct {
	// Messages is ordered chronologically and is only ever appended to during execution.
	Messages []Message `json:"messages"`

	// Values holds every other named field.
	Values map[string]any `json:"values,omitempty"`
}

// NewState returns an empty state.
func NewState() State {
	return State{
		Messages: []Message{},
		Values:   make(map[string]any),
	}
}

// Clone returns a copy whose slices and top-level maps do not alias the receiver.
func (s State) Clone() State {
	out := State{
		Messages: make([]Message, len(s.Messages)),
		Values:   make(map[string]any, len(s.Values)),
	}
	copy(out.Messages, s.Messages)
	maps.Copy(out.Values, s.Values)
	return out
}

// Get returns a named field, including the messages field.
func (s State) Get(field string) (any, bool) {
	if field == FieldMessages {
		return s.Messages, true
	}
	v, ok := s.Values[field]
	return v, ok
}

// LastMessage returns the most recent message, if any.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Update is a partial state: only the fields present are merged.
type Update struct {
	Messages []Message      `json:"messages,omitempty"`
	Values   map[string]any `json:"values,omitempty"`
}

// Empty reports whether the update carries no changes.
func (u Update) Empty() bool {
	return len(u.Messages) == 0 && len(u.Values) == 0
}

// Input builds the usual turn input: a single user message.
func Input(content string) Update {
	return Update{Messages: []Message{UserMessage(content)}}
}
