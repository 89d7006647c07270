package middleware

import (
	"context"
	"errors"
	"regexp"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks state values whose keys match the patterns.
// The transcript is left untouched; only named fields are redacted before they reach the store.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Put(ctx context.Context, threadID string, state domain.State) (domain.Checkpoint, error) {
	// Clone so the caller's state is not masked.
	cloned := state.Clone()
	cloned.Values = deepCopyMap(state.Values)
	maskMap(cloned.Values, m.patterns)

	return m.next.Put(ctx, threadID, cloned)
}

func (m *piiMiddleware) Get(ctx context.Context, threadID string) (domain.State, error) {
	return m.next.Get(ctx, threadID)
}

func (m *piiMiddleware) GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error) {
	return m.next.GetCheckpoint(ctx, threadID)
}

func (m *piiMiddleware) ListCheckpoints(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	lister, ok := m.next.(ports.CheckpointLister)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	return lister.ListCheckpoints(ctx, threadID)
}

func (m *piiMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}

		if subMap, ok := v.(map[string]any); ok && !masked {
			maskMap(subMap, patterns)
		}
	}
}
