package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	hi := Message{ID: "1", Role: RoleUser, Content: "hi"}
	hello := Message{ID: "2", Role: RoleAssistant, Content: "hello"}

	tests := []struct {
		name     string
		old      *State
		new      *State
		wantDiff *StateDiff
	}{
		{
			name:     "Initial Load (Old is Nil)",
			old:      nil,
			new:      &State{Messages: []Message{hi}, Values: map[string]any{"a": 1}},
			wantDiff: &StateDiff{Values: map[string]any{"a": 1}, Appended: []Message{hi}},
		},
		{
			name:     "No Changes",
			old:      &State{Messages: []Message{hi}, Values: map[string]any{"a": 1}},
			new:      &State{Messages: []Message{hi}, Values: map[string]any{"a": 1}},
			wantDiff: nil,
		},
		{
			name:     "Message Appended",
			old:      &State{Messages: []Message{hi}},
			new:      &State{Messages: []Message{hi, hello}},
			wantDiff: &StateDiff{Appended: []Message{hello}},
		},
		{
			name:     "Value Changed And Deleted",
			old:      &State{Values: map[string]any{"a": 1, "b": true}},
			new:      &State{Values: map[string]any{"a": 2}},
			wantDiff: &StateDiff{Values: map[string]any{"a": 2, "b": nil}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			assert.Equal(t, tt.wantDiff, got)
		})
	}
}

func TestDiff_JSONOmitsEmptyFields(t *testing.T) {
	diff := Diff(&State{}, &State{Values: map[string]any{"topic": "go"}})
	require.NotNil(t, diff)

	data, err := json.Marshal(diff)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"topic":"go"`))
	assert.False(t, strings.Contains(string(data), "appended"))
}
