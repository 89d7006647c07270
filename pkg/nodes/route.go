package nodes

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
)

// Keyword returns a router that picks a destination by the first keyword found
// in the latest message, falling back to fallback. Matching is case-insensitive
// and keywords are tried in lexical order.
func Keyword(routes map[string]string, fallback string) graph.RouterFunc {
	keywords := slices.Sorted(maps.Keys(routes))
	return func(_ context.Context, state domain.State) (string, error) {
		last, ok := state.LastMessage()
		if !ok {
			return fallback, nil
		}
		content := strings.ToLower(last.Content)
		for _, keyword := range keywords {
			if strings.Contains(content, strings.ToLower(keyword)) {
				return routes[keyword], nil
			}
		}
		return fallback, nil
	}
}

// Field returns a router that reads a string field from state.
// Missing or non-string values route to fallback.
func Field(name, fallback string) graph.RouterFunc {
	return func(_ context.Context, state domain.State) (string, error) {
		v, ok := state.Get(name)
		if !ok {
			return fallback, nil
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return fallback, nil
		}
		return s, nil
	}
}
