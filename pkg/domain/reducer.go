package domain

import (
	"maps"

	"github.com/google/uuid"
)

// Reducer merges a field's previous value with a partial update.
type Reducer func(old, update any) any

// Replace is the default reducer: the update wins.
func Replace(_, update any) any {
	return update
}

// AppendList concatenates []any values. A non-slice update is appended as one element.
func AppendList(old, update any) any {
	var out []any
	if prev, ok := old.([]any); ok {
		out = append(out, prev...)
	}
	if next, ok := update.([]any); ok {
		return append(out, next...)
	}
	return append(out, update)
}

// MergeMap shallow-merges map[string]any values, keys from the update winning.
func MergeMap(old, update any) any {
	out := make(map[string]any)
	if prev, ok := old.(map[string]any); ok {
		maps.Copy(out, prev)
	}
	if next, ok := update.(map[string]any); ok {
		maps.Copy(out, next)
		return out
	}
	return update
}

// AppendMessages is the reducer for the messages field.
// Messages are concatenated in order; missing IDs are assigned.
func AppendMessages(old, update []Message) []Message {
	out := make([]Message, 0, len(old)+len(update))
	out = append(out, old...)
	for _, m := range update {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		out = append(out, m)
	}
	return out
}

// Schema declares the reducers used for the named fields of State.Values.
// Fields without a reducer use Replace.
type Schema struct {
	Reducers map[string]Reducer
}

// MessagesSchema is the default schema: append-only messages, replace for everything else.
func MessagesSchema() Schema {
	return Schema{Reducers: map[string]Reducer{}}
}

// WithReducer returns a copy of the schema with a reducer registered for field.
func (s Schema) WithReducer(field string, r Reducer) Schema {
	out := Schema{Reducers: make(map[string]Reducer, len(s.Reducers)+1)}
	maps.Copy(out.Reducers, s.Reducers)
	out.Reducers[field] = r
	return out
}

// Apply merges an update into the state and returns the merged state.
// The input state is not modified.
func (s Schema) Apply(state State, update Update) State {
	next := state.Clone()
	if len(update.Messages) > 0 {
		next.Messages = AppendMessages(next.Messages, update.Messages)
	}
	for field, value := range update.Values {
		reduce, ok := s.Reducers[field]
		if !ok {
			reduce = Replace
		}
		next.Values[field] = reduce(next.Values[field], value)
	}
	return next
}
