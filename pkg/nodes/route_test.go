package nodes_test

import (
	"context"
	"testing"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyword(t *testing.T) {
	router := nodes.Keyword(map[string]string{
		"refund":  "billing",
		"invoice": "billing",
		"crash":   "support",
	}, "general")

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"match", "The app CRASHED again", "support"},
		{"fallback", "hello", "general"},
		{"lexical order", "crash after refund", "support"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := router(context.Background(), stateWith(domain.UserMessage(tt.msg)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := router(context.Background(), domain.NewState())
	require.NoError(t, err)
	assert.Equal(t, "general", got)
}

func TestField(t *testing.T) {
	router := nodes.Field("intent", "fallback")

	s := domain.NewState()
	got, _ := router(context.Background(), s)
	assert.Equal(t, "fallback", got)

	s.Values["intent"] = 42
	got, _ = router(context.Background(), s)
	assert.Equal(t, "fallback", got)

	s.Values["intent"] = "search"
	got, _ = router(context.Background(), s)
	assert.Equal(t, "search", got)
}
