package domain

import (
	"reflect"
)

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// Version is the checkpoint version the diff leads to, when known.
	Version int64 `json:"version,omitempty"`

	// Values contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Values map[string]any `json:"values,omitempty"`

	// Appended holds the messages added since the old state.
	Appended []Message `json:"appended,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing changed.
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		Values:   diffValues(oldState, newState),
		Appended: diffMessages(oldState, newState),
	}
	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffValues(old *State, new *State) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Values {
			delta[k] = v
		}
		return nilIfEmpty(delta)
	}

	for k, newVal := range new.Values {
		oldVal, exists := old.Values[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old.Values {
		if _, exists := new.Values[k]; !exists {
			delta[k] = nil
		}
	}

	return nilIfEmpty(delta)
}

func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// diffMessages relies on the append-only invariant of the messages field.
func diffMessages(old *State, new *State) []Message {
	if len(new.Messages) == 0 {
		return nil
	}
	if old == nil {
		return new.Messages
	}
	if len(new.Messages) > len(old.Messages) {
		return new.Messages[len(old.Messages):]
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Values) == 0 && len(d.Appended) == 0
}
